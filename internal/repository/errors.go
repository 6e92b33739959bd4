package repository

import apperrors "school-health/backend/pkg/errors"

// 领域错误，服务层原样返回给上层
var (
	ErrCampaignNotFound      = apperrors.NotFound("接种活动不存在")
	ErrParticipationNotFound = apperrors.NotFound("接种参与记录不存在")

	ErrEmptyStudentIDs         = apperrors.Validation("学生列表不能为空")
	ErrConcurrentEnrollment    = apperrors.Validation("部分学生已被同时加入该活动，请刷新后重试")
	ErrInvalidConsent          = apperrors.Validation("知情同意只能为 approved 或 denied")
	ErrDenialReasonRequired    = apperrors.Validation("拒绝接种时必须填写原因")
	ErrInvalidOutcome          = apperrors.Validation("接种结果只能为 completed / missed / cancelled")
	ErrVaccinationDateRequired = apperrors.Validation("接种完成时必须提供接种日期")
	ErrOutcomeAlreadyRecorded  = apperrors.Validation("该记录的接种结果已录入，不能重复录入")
	ErrInvalidFilterValue      = apperrors.Validation("查询条件中的 ID 格式无效")
	ErrInvalidCampaignStatus   = apperrors.Validation("活动状态只能为 draft / active / completed / cancelled")

	ErrNotGuardian = apperrors.Authorization("只能为自己孩子的接种记录提交知情同意")
)
