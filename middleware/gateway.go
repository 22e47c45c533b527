package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"challenge-quest/services"
	"challenge-quest/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	LocalUserID  = "user_id"
	LocalIsAdmin = "is_admin"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (utils.Identity, error)
}

// Identity resolves the caller from the Authorization header. A bearer equal
// to gatewayToken marks a request forwarded by the gateway, whose identity is
// carried in X-User-ID and X-User-Admin. Any other bearer must be a valid JWT.
// Requests without a header continue anonymously.
func Identity(auth Authenticator, gatewayToken string, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		if gatewayToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(gatewayToken)) == 1 {
			userID := strings.TrimSpace(c.Get("X-User-ID"))
			if userID == "" {
				log.WithField("path", c.Path()).Warn("gateway request without X-User-ID")
				return WriteError(c, services.ErrUnauthorized)
			}
			c.Locals(LocalUserID, userID)
			c.Locals(LocalIsAdmin, strings.EqualFold(c.Get("X-User-Admin"), "true"))
			return c.Next()
		}

		id, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			log.WithError(err).WithField("path", c.Path()).Debug("bearer rejected")
			return rejectToken(c, err)
		}
		c.Locals(LocalUserID, id.UserID)
		c.Locals(LocalIsAdmin, id.IsAdmin)
		return c.Next()
	}
}
