// Package contextx 提供在 context.Context 中注入与提取调用方上下文（请求 ID、调用方账号、用户名、权限、令牌 ID）的工具函数。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import (
	"context"
)

// 上游传输层使用的标准头部名称。
const (
	HeaderRequestID = "x-request-id"
	HeaderJTI       = "jti"
	HeaderUserInfo  = "userinfo"
	HeaderUserName  = "username"

	// DefaultTimeFormat 默认时间格式。
	DefaultTimeFormat = "2006-01-02 15:04:05"
)

type contextKey int

const (
	RequestIDKey   contextKey = iota // 请求唯一标识 Key。
	CallerUIDKey                     // 调用方账号 Key。
	UserNameKey                      // 用户名 Key。
	AuthoritiesKey                   // 权限集合 Key。
	JTIKey                           // 令牌 ID Key。
)

// AllKeys 返回所有标准调用方上下文 Key。
var AllKeys = []contextKey{
	RequestIDKey,
	CallerUIDKey,
	UserNameKey,
	AuthoritiesKey,
	JTIKey,
}

// KeyNames 映射 Key 到日志字段名。
var KeyNames = map[contextKey]string{
	RequestIDKey:   "request_id",
	CallerUIDKey:   "caller_uid",
	UserNameKey:    "username",
	AuthoritiesKey: "authorities",
	JTIKey:         "jti",
}

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}

// WithCallerUID 注入调用方账号。
func WithCallerUID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, CallerUIDKey, uid)
}

// GetCallerUID 提取调用方账号，不存在时返回 0。
func GetCallerUID(ctx context.Context) int64 {
	if val, ok := ctx.Value(CallerUIDKey).(int64); ok {
		return val
	}
	return 0
}

// WithUserName 注入用户名。
func WithUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, UserNameKey, name)
}

// GetUserName 提取用户名。
func GetUserName(ctx context.Context) string {
	if val, ok := ctx.Value(UserNameKey).(string); ok {
		return val
	}
	return ""
}

// WithAuthorities 注入以逗号分隔的权限集合。
func WithAuthorities(ctx context.Context, authorities string) context.Context {
	return context.WithValue(ctx, AuthoritiesKey, authorities)
}

// GetAuthorities 提取权限集合。
func GetAuthorities(ctx context.Context) string {
	if val, ok := ctx.Value(AuthoritiesKey).(string); ok {
		return val
	}
	return ""
}

// WithJTI 注入令牌 ID。
func WithJTI(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, JTIKey, jti)
}

// GetJTI 提取令牌 ID。
func GetJTI(ctx context.Context) string {
	if val, ok := ctx.Value(JTIKey).(string); ok {
		return val
	}
	return ""
}

// LogAttrs 以 key/value 形式返回上下文中已设置的字段，供 slog 使用。
func LogAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, len(AllKeys)*2)
	for _, key := range AllKeys {
		val := ctx.Value(key)
		if val == nil {
			continue
		}
		attrs = append(attrs, KeyNames[key], val)
	}
	return attrs
}
