package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/api/responses"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
)

// Auth validates a bearer token minted by the identity service and seeds the
// request context with the buyer id from the subject claim.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			buyerID, err := parseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithBuyerID(r.Context(), buyerID)
			if logg != nil {
				ctx = logg.WithBuyerID(ctx, buyerID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseAccessToken(cfg config.JWTConfig, raw string) (string, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(subject); err != nil {
		return "", fmt.Errorf("subject is not a valid buyer id: %w", err)
	}
	return subject, nil
}
