// Package jwt 签发与解析携带调用方身份的令牌，并把令牌中的身份注入 context 供总线消息使用。
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wyfcoding/cqrskit/config"
	"github.com/wyfcoding/cqrskit/contextx"
)

var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token is expired")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrEmptySecret    = errors.New("jwt secret must not be empty")
)

// Claims 令牌载荷。Authorities 以逗号分隔，ID (jti) 对应外部凭证。
type Claims struct {
	UserID      int64  `json:"uid"`
	Username    string `json:"username"`
	Authorities string `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// Subject 待签发令牌的调用方身份。
type Subject struct {
	UserID      int64
	Username    string
	Authorities []string
}

// GenerateToken 使用 HS256 签发令牌，每个令牌获得新的 jti。
func GenerateToken(sub Subject, cfg config.JWTConfig) (string, *Claims, error) {
	if cfg.Secret == "" {
		return "", nil, ErrEmptySecret
	}
	expires := cfg.ExpireDuration
	if expires <= 0 {
		expires = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		UserID:      sub.UserID,
		Username:    sub.Username,
		Authorities: strings.Join(sub.Authorities, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expires)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken 解析并校验令牌字符串
func ParseToken(tokenString, secretKey string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrTokenInvalid
}

// Inject 把令牌中的调用方身份写入 context。
func (c *Claims) Inject(ctx context.Context) context.Context {
	ctx = contextx.WithCallerUID(ctx, c.UserID)
	ctx = contextx.WithUserName(ctx, c.Username)
	ctx = contextx.WithAuthorities(ctx, c.Authorities)
	return contextx.WithJTI(ctx, c.ID)
}
