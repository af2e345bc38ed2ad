package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/http/response"
)

const (
	identityKey = "identity"
	// userIDKey feeds KeyByUserOrIP.
	userIDKey = "userID"
)

// AuthOptions selects how bearer tokens are decoded.
//
// With VerifySignature false the claims are read without checking the
// signature. That is only acceptable behind a gateway that already verified
// the token, and Auth logs a warning at construction.
type AuthOptions struct {
	VerifySignature bool
	Algorithm       string // e.g. HS256; the only method accepted when verifying
	Secret          []byte
}

// Identity is the authenticated caller.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type identityCtxKey struct{}

// tokenClaims are the claims read from the bearer token.
type tokenClaims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// Auth requires "Authorization: Bearer <token>" and stores the caller's
// Identity for later stages.
//
//   - header missing or not a bearer token: UNAUTHORIZED, chain stops;
//   - token undecodable or lacking name/preferred_username: DECODE_ERROR;
//   - unexpected failure while decoding: SYSTEM_ERROR.
func Auth(opts AuthOptions) gin.HandlerFunc {
	if !opts.VerifySignature {
		log.Warn().Msg("bearer token signatures are NOT verified; run behind a verifying gateway")
	}
	decode := tokenDecoder(opts)

	return func(c *gin.Context) {
		lg := LoggerFrom(c)
		lg.Debug().Msg("start auth")
		defer func() { lg.Debug().Msg("end auth") }()

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			lg.Warn().Msg("missing bearer token")
			response.Abort(c, apperr.Unauthorized())
			return
		}

		id, err := safeDecode(decode, raw)
		if err != nil {
			ae, ok := apperr.As(err)
			if !ok {
				ae = apperr.SystemError()
			}
			if ae.IsApplication() {
				lg.Warn().Err(err).Msg("token rejected")
			} else {
				lg.Error().Err(err).Msg("token decoding failed")
			}
			response.Abort(c, ae)
			return
		}

		c.Set(identityKey, id)
		c.Set(userIDKey, id.Email)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityCtxKey{}, id))
		c.Next()
	}
}

// IdentityFrom returns the caller stored by Auth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// IdentityFromContext is IdentityFrom for code that only sees a context.Context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// safeDecode turns a panic inside the decoder into a system error.
func safeDecode(decode func(string) (Identity, error), raw string) (id Identity, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.NewSystemError(apperr.CodeSystemError, apperr.WithCause(fmt.Errorf("panic: %v", rec)))
		}
	}()
	return decode(raw)
}

// tokenDecoder is a seam for tests.
var tokenDecoder = func(opts AuthOptions) func(string) (Identity, error) {
	alg := opts.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	verifying := jwt.NewParser(jwt.WithValidMethods([]string{alg}))
	unverified := jwt.NewParser()

	return func(raw string) (Identity, error) {
		claims := &tokenClaims{}
		var err error
		if opts.VerifySignature {
			_, err = verifying.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return opts.Secret, nil
			})
		} else {
			_, _, err = unverified.ParseUnverified(raw, claims)
		}
		if err != nil {
			return Identity{}, apperr.NewApplicationError(apperr.CodeDecodeError, apperr.WithCause(err))
		}
		if claims.Name == "" || claims.PreferredUsername == "" {
			return Identity{}, apperr.NewApplicationError(apperr.CodeDecodeError,
				apperr.WithCause(errors.New("token lacks name or preferred_username")))
		}
		return Identity{Name: claims.Name, Email: claims.PreferredUsername}, nil
	}
}
