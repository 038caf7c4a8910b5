package chi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	logpkg "github.com/kailas-cloud/askdex/internal/logger"
)

// TokenVerifier turns a bearer token into the acting user.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// exemptPaths are routes that never look at credentials (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type identityHolderKey struct{}

// identityHolder lets outer middleware see the identity resolved further in.
type identityHolder struct {
	id domain.Identity
}

// Authenticate resolves the Authorization header into a domain.Identity on
// the request context. Requests without the header pass through anonymously;
// a present but invalid header is rejected with 401.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}
			if v == nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication is not configured")
				return
			}

			who, err := v.Verify(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				logpkg.FromContext(r.Context()).Debug("token rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
				return
			}

			if h, ok := r.Context().Value(identityHolderKey{}).(*identityHolder); ok {
				h.id = who
			}
			ctx := domain.ContextWithIdentity(r.Context(), who)
			ctx = logpkg.WithFields(ctx, zap.String("user_id", who.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects anonymous requests with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := domain.IdentityFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
