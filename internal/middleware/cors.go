package middleware

import (
	"net/http"
	"strings"
)

// OriginMatcher 根据白名单判断来源是否允许，"*" 表示允许任意来源。
type OriginMatcher struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginMatcher 构建来源白名单，忽略空项与末尾斜杠。
func NewOriginMatcher(allowedOrigins []string) OriginMatcher {
	m := OriginMatcher{allowed: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			m.allowAll = true
			continue
		}
		if origin != "" {
			m.allowed[strings.TrimRight(origin, "/")] = struct{}{}
		}
	}
	return m
}

// AllowAll reports whether the list contained the wildcard.
func (m OriginMatcher) AllowAll() bool {
	return m.allowAll
}

// Allowed reports whether a non-empty Origin header value is on the list.
func (m OriginMatcher) Allowed(origin string) bool {
	if m.allowAll {
		return true
	}
	_, ok := m.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// CORS 返回按白名单放行跨域请求的中间件。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := NewOriginMatcher(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if origins.AllowAll() {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if origins.Allowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
