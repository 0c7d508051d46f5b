// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// FallbackIdentity は接続元アドレスを特定できない場合の識別キー。
const FallbackIdentity = "0.0.0.0"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに識別キーを格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityResolver は接続メタデータから参加者の識別キーを解決する。
type IdentityResolver interface {
	Resolve(r *http.Request) string
}

// AddrResolver はネットワークアドレスから識別キーを解決する。
// 優先順位は ?ip= クエリ（AllowOverride時）→ X-Forwarded-Forの先頭（TrustForwardedFor時）→ 接続元アドレス。
// IPv4射影アドレスの "::ffff:" 接頭辞は取り除く。
type AddrResolver struct {
	AllowOverride     bool
	TrustForwardedFor bool
}

// Resolve はIdentityResolverインターフェースを実装する。
func (a AddrResolver) Resolve(r *http.Request) string {
	if a.AllowOverride {
		if forced := strings.TrimSpace(r.URL.Query().Get("ip")); forced != "" {
			return forced
		}
	}
	if a.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return normalizeAddr(first)
			}
		}
	}
	return normalizeAddr(remoteHost(r.RemoteAddr))
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func normalizeAddr(addr string) string {
	addr = strings.TrimPrefix(addr, "::ffff:")
	if addr == "" {
		return FallbackIdentity
	}
	return addr
}

// NewIdentityMiddleware は識別キーを解決してリクエストコンテキストに注入するミドルウェアを返す。
// 認証は行わず、参加者として登録済みかどうかの判定はエンジンに委ねる。
func NewIdentityMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithIdentity(r.Context(), resolver.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから識別キーを取得する。
func IdentityFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(identityContextKey).(string)
	return key, ok && key != ""
}

// ContextWithIdentity はコンテキストに識別キーを注入する。
func ContextWithIdentity(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, identityContextKey, key)
}
