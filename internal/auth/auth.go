// Package auth turns bearer tokens into a domain.Identity at the transport boundary.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

const (
	defaultIssuer = "quiz-attempts"
	defaultTTL    = 8 * time.Hour
	bearerPrefix  = "Bearer "
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims carries the caller's role next to the standard claims. The subject is the user ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func New(c Config) *Authenticator {
	a := &Authenticator{
		secret: []byte(c.Secret),
		issuer: c.Issuer,
		ttl:    c.TTL,
		now:    time.Now,
	}
	if a.issuer == "" {
		a.issuer = defaultIssuer
	}
	if a.ttl <= 0 {
		a.ttl = defaultTTL
	}
	return a
}

// Issue signs a token for who. Tokens are normally minted by the identity provider;
// Issue serves local tooling and tests.
func (a *Authenticator) Issue(who domain.Identity) (string, error) {
	now := a.now()
	claims := &Claims{
		Role: string(who.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   who.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Parse validates the token and returns the identity it carries.
func (a *Authenticator) Parse(token string) (domain.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.Identity{}, unauthenticated("invalid token", err)
	}

	who := domain.Identity{
		UserID: claims.Subject,
		Role:   domain.Role(claims.Role),
	}
	if who.UserID == "" {
		return domain.Identity{}, unauthenticated("token has no subject", nil)
	}
	switch who.Role {
	case domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin:
	default:
		return domain.Identity{}, unauthenticated(fmt.Sprintf("unknown role %q", claims.Role), nil)
	}

	return who, nil
}

// ParseAuthorization reads an "Authorization: Bearer <token>" value.
func (a *Authenticator) ParseAuthorization(header string) (domain.Identity, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return domain.Identity{}, unauthenticated("missing bearer token", nil)
	}
	return a.Parse(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
}

type identityKey struct{}

func WithIdentity(ctx context.Context, who domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

// FromContext returns the identity stored by the HTTP middleware or gRPC interceptor.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(domain.Identity)
	return who, ok
}

func unauthenticated(msg string, cause error) *errors.Error {
	opts := []errors.Option{errors.WithMessagef("%s", msg)}
	if cause != nil {
		opts = append(opts, errors.WithCause(cause))
	}
	return errors.New(errors.CodeUnauthenticated, opts...)
}
