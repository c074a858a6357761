package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Roles  []models.Role
}

func (p Principal) Has(role models.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool { return p.Has(models.RoleAdmin) }

type claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued by the auth service.
type Verifier struct {
	Secret []byte
	Issuer string
}

func (v Verifier) Parse(header string) (Principal, error) {
	tokenStr := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
		tokenStr = strings.TrimSpace(tokenStr[7:])
	}
	if tokenStr == "" {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	var c claims
	tok, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	if c.Subject == "" {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "token has no subject")
	}

	p := Principal{UserID: c.Subject}
	for _, r := range c.Roles {
		p.Roles = append(p.Roles, models.Role(strings.ToUpper(r)))
	}
	return p, nil
}

// Issue signs a token; used by tests and local tooling.
func (v Verifier) Issue(userID string, roles []models.Role, ttl time.Duration) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	for _, r := range roles {
		c.Roles = append(c.Roles, string(r))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.Secret)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// ErrorWriter renders an error response; the HTTP layer supplies it.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid token.
func (v Verifier) Middleware(writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Parse(r.Header.Get("Authorization"))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole allows the request through when the principal has any of roles.
func RequireRole(writeErr ErrorWriter, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				writeErr(w, r, apperr.New(apperr.KindUnauthorized, "not authenticated"))
				return
			}
			for _, role := range roles {
				if p.Has(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeErr(w, r, apperr.Forbidden("role not permitted"))
		})
	}
}

var errNoPrincipal = errors.New("no principal in context")

// MustFrom returns the principal or an Unauthorized error.
func MustFrom(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, errNoPrincipal, "not authenticated")
	}
	return p, nil
}
