// Package auth protects the MCP HTTP endpoints.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sha1n/mr-pickles/internal/config"
)

// APIKeyHeader carries an API key. A bearer token in Authorization is accepted as well.
const APIKeyHeader = "X-API-Key"

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health": true,
}

// NewMiddleware creates the authentication middleware for settings.
func NewMiddleware(settings config.AuthSettings, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return guard(logger, basicAuth(settings.Basic)), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return guard(logger, apiKeyAuth(settings.APIKeys)), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// authenticator reports whether r carries valid credentials and, if not,
// the WWW-Authenticate challenge to send.
type authenticator func(r *http.Request) (ok bool, challenge string)

// guard turns an authenticator into middleware that skips public paths.
func guard(logger *slog.Logger, authenticate authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if ok, challenge := authenticate(r); !ok {
				logger.Warn("Rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
				if challenge != "" {
					w.Header().Set("WWW-Authenticate", challenge)
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func basicAuth(settings config.BasicAuthSettings) authenticator {
	return func(r *http.Request) (bool, string) {
		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(settings.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(settings.Password)) == 1
		return ok && userMatch && passMatch, `Basic realm="Restricted"`
	}
}

func apiKeyAuth(apiKeys []string) authenticator {
	return func(r *http.Request) (bool, string) {
		key := requestKey(r)
		if key == "" {
			return false, "Bearer"
		}
		for _, validKey := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
				return true, ""
			}
		}
		return false, "Bearer"
	}
}

// requestKey extracts the API key from the X-API-Key header or a bearer token.
func requestKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
