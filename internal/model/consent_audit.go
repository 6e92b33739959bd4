package model

import "time"

// ConsentAuditEntry 知情同意变更审计 — MongoDB 集合 consent_audit
// 只追加；参与记录本身仍按覆盖方式保存最新决定
type ConsentAuditEntry struct {
	ID              string    `bson:"_id"             json:"id"`
	ParticipationID string    `bson:"participationId" json:"participationId"`
	CampaignID      string    `bson:"campaignId"      json:"campaignId"`
	StudentID       string    `bson:"studentId"       json:"studentId"`
	ParentID        string    `bson:"parentId"        json:"parentId"`
	PreviousConsent string    `bson:"previousConsent" json:"previousConsent"`
	Consent         string    `bson:"consent"         json:"consent"`
	Note            string    `bson:"note,omitempty"  json:"note,omitempty"`
	RecordedAt      time.Time `bson:"recordedAt"      json:"recordedAt"`
}
