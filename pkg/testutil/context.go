package testutil

import (
	"net/http"

	id "lms/pkg/domain"
	"lms/pkg/requestcontext"
)

// WithSubject adds an authenticated subject and role to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithSubject(req *http.Request, subject id.SubjectID, role string) *http.Request {
	ctx := requestcontext.WithSubjectID(req.Context(), subject)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
