// Package session authenticates the holder of a signed session claim.
//
// Claims are HS256 JWTs carrying the subject id, a role and a mandatory expiry.
// Login and token minting live elsewhere; Issuer exists for tests and local
// tooling.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
)

// Role is the authorization class of a principal.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleOfficer   Role = "officer"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleApplicant, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may act on applications it does not own.
func (r Role) IsStaff() bool {
	return r == RoleOfficer || r == RoleAdmin
}

// Principal is the authenticated identity bound to a connection or request.
type Principal struct {
	SubjectID id.SubjectID
	Role      Role
}

// Claims is the JWT body. Subject lives in the registered "sub" claim.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Gate validates session claims.
type Gate struct {
	signingKey []byte
	clock      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time used for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func NewGate(signingKey string, opts ...Option) *Gate {
	g := &Gate{signingKey: []byte(signingKey), clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate returns the principal named by token. Every failure is an
// unauthorized domain error.
func (g *Gate) Authenticate(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "missing session token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return g.signingKey, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "session token has expired")
		}
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	subject, err := id.ParseSubjectID(claims.Subject)
	if err != nil {
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session subject")
	}
	role := Role(claims.Role)
	if !role.IsValid() {
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session role")
	}
	return Principal{SubjectID: subject, Role: role}, nil
}

// Issuer mints session claims with the gate's key.
type Issuer struct {
	signingKey []byte
	clock      func() time.Time
}

func NewIssuer(signingKey string) *Issuer {
	return &Issuer{signingKey: []byte(signingKey), clock: time.Now}
}

// Issue signs a claim for subject valid for ttl. A negative ttl yields an
// already expired token.
func (i *Issuer) Issue(subject id.SubjectID, role Role, ttl time.Duration) (string, error) {
	now := i.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(i.signingKey)
}
