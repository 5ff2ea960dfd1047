// Package auth resolves the caller of an API request into an identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/store"
)

const (
	// CallerHeader carries the caller's username when a trusted gateway
	// sits in front of the service.
	CallerHeader = "X-Caller-Id"

	identityKey = "auth.identity"
	errorKey    = "auth.error"
)

type Options struct {
	Secret            string
	TrustCallerHeader bool
}

// Authenticator turns bearer tokens (or the gateway header) into identities.
type Authenticator struct {
	dir  store.IdentityDirectory
	opts Options
}

func New(dir store.IdentityDirectory, opts Options) *Authenticator {
	return &Authenticator{dir: dir, opts: opts}
}

// IssueToken signs an HS256 token whose subject is username.
func IssueToken(secret, username string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the token and returns its subject.
func ParseToken(secret, tokenString string) (string, error) {
	if secret == "" {
		return "", errs.Unauthenticated("token authentication is not configured")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", errs.Unauthenticated("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errs.Unauthenticated("token has no subject")
	}
	return claims.Subject, nil
}

func (a *Authenticator) username(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return "", errs.Unauthenticated("unsupported authorization scheme")
		}
		return ParseToken(a.opts.Secret, strings.TrimSpace(token))
	}
	if a.opts.TrustCallerHeader {
		if name := strings.TrimSpace(c.GetHeader(CallerHeader)); name != "" {
			return name, nil
		}
	}
	return "", errs.Unauthenticated("authentication required")
}

// Middleware resolves the caller and stores it on the context. Resolution
// failures are recorded rather than aborting so handlers decide how to
// respond through Current.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name, err := a.username(c)
		if err == nil {
			var ident *model.Identity
			ident, err = a.dir.IdentityByUsername(c.Request.Context(), name)
			if errors.Is(err, errs.ErrNotFound) {
				err = errs.Unauthenticated("unknown caller")
			}
			if err == nil {
				c.Set(identityKey, ident)
			}
		}
		if err != nil {
			c.Set(errorKey, err)
		}
		c.Next()
	}
}

// Current returns the identity resolved by Middleware.
func Current(c *gin.Context) (*model.Identity, error) {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(*model.Identity); ok && ident != nil {
			return ident, nil
		}
	}
	if v, ok := c.Get(errorKey); ok {
		if err, ok := v.(error); ok {
			return nil, err
		}
	}
	return nil, errs.Unauthenticated("authentication required")
}

// SetCurrent stores ident as the caller. Tests use it to bypass tokens.
func SetCurrent(c *gin.Context, ident *model.Identity) {
	c.Set(identityKey, ident)
}
