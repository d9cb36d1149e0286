package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"lms/internal/session"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/httputil"
	"lms/pkg/requestcontext"
)

// Authenticator validates a session token.
type Authenticator interface {
	Authenticate(token string) (session.Principal, error)
}

// Principal returns the authenticated caller placed in ctx by RequireAuth.
func Principal(ctx context.Context) (session.Principal, bool) {
	subject := requestcontext.SubjectID(ctx)
	if subject.IsNil() {
		return session.Principal{}, false
	}
	return session.Principal{SubjectID: subject, Role: session.Role(requestcontext.Role(ctx))}, true
}

// WithPrincipal injects p into ctx the way RequireAuth does.
func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	ctx = requestcontext.WithSubjectID(ctx, p.SubjectID)
	return requestcontext.WithRole(ctx, string(p.Role))
}

// RequireAuth rejects requests without a valid bearer session with 401.
func RequireAuth(gate Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			principal, err := gate.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}
