package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

const ownerKey = "owner"

// authMiddleware accepts HS256 bearer tokens and stores their subject as the request owner.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return s.writeError(c, apperrors.ErrUnauthorized.WithMessage("missing authorization header"))
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid || claims.Subject == "" {
			return s.writeError(c, apperrors.ErrUnauthorized.WithMessage("invalid token"))
		}

		c.Locals(ownerKey, claims.Subject)
		return c.Next()
	}
}

func (s *Server) rateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.limiter == nil || s.limiter.Allow(owner(c)) {
			return c.Next()
		}
		return s.writeError(c, apperrors.ErrRateLimited)
	}
}

// metricsMiddleware labels requests by route pattern so ids do not explode the series count.
func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if s.metrics != nil {
			status := c.Response().StatusCode()
			if err != nil {
				if fe, ok := err.(*fiber.Error); ok {
					status = fe.Code
				}
			}
			s.metrics.ObserveHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))
		}
		return err
	}
}

func owner(c *fiber.Ctx) string {
	id, _ := c.Locals(ownerKey).(string)
	return id
}

func (s *Server) issueToken(userID string, now time.Time) (string, error) {
	ttl := s.config.Security.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(s.config.Security.JWTSecret))
}
