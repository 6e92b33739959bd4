package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"school-health/backend/config"
)

const (
	issuer          = "school-health"
	tokenTypeAccess = "access"
	clockSkew       = 30 * time.Second
)

var (
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

// Claims 访问令牌声明；角色随令牌下发，请求内不再查库
type Claims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwtv5.RegisteredClaims
}

// Manager 校验认证服务签发的 HS256 令牌
type Manager struct {
	secret []byte
	ttl    time.Duration
	parser *jwtv5.Parser
}

func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.AccessTokenTTL,
		parser: jwtv5.NewParser(
			jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
			jwtv5.WithIssuer(issuer),
			jwtv5.WithExpirationRequired(),
			jwtv5.WithLeeway(clockSkew),
		),
	}
}

// GenerateAccessToken 签发访问令牌，供联调与测试使用
func (m *Manager) GenerateAccessToken(userID, role string) (string, error) {
	now := time.Now()
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, Claims{
		UserID:    userID,
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.ttl)),
		},
	}).SignedString(m.secret)
}

// ParseToken 只接受未过期、带用户 ID 的 access 令牌
func (m *Manager) ParseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := m.parser.ParseWithClaims(raw, claims, func(*jwtv5.Token) (interface{}, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	case claims.TokenType != tokenTypeAccess || claims.UserID == "":
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
