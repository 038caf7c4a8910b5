// Package auth turns bearer JWTs into the acting user's identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/askdex/internal/domain"
)

const leeway = 30 * time.Second

// Claims are the token claims askdex reads: sub is the user id, name the
// display name shown next to questions and answers.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Config selects the key source. Exactly one of Secret and JWKSURL is set.
type Config struct {
	Secret   string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Verifier validates tokens signed with a shared HS256 secret or with keys
// published at a JWKS endpoint.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// New builds a Verifier. For JWKS the key set is fetched once here and
// refreshed in the background until ctx is cancelled.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	var (
		kf      jwt.Keyfunc
		methods []string
	)
	switch {
	case cfg.Secret != "" && cfg.JWKSURL != "":
		return nil, errors.New("auth: jwt_secret and jwks_url are mutually exclusive")
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		kf = func(*jwt.Token) (any, error) { return secret, nil }
		methods = []string{jwt.SigningMethodHS256.Alg()}
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("auth: create JWKS client: %w", err)
		}
		kf = jwks.Keyfunc
		methods = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}
	default:
		return nil, errors.New("auth: jwt_secret or jwks_url is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithLeeway(leeway)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{keyfunc: kf, parser: jwt.NewParser(opts...)}, nil
}

// Verify checks the token signature and claims and returns the identity it
// carries. Every failure is domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyfunc)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return domain.Identity{ID: claims.Subject, DisplayName: name}, nil
}
