package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
)

// SessionClaims bind a bearer token to one offramp session and the wallet
// that started it.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Sender    string `json:"sender"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs an HS256 token for sessionID. It is returned once,
// when the session is created.
func IssueSessionToken(secret, sessionID, sender string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		SessionID: sessionID,
		Sender:    sender,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SessionAuth requires a session token whose sid matches the :id route
// parameter. An empty secret disables the check.
func SessionAuth(secret string) fiber.Handler {
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return apperrors.ErrUnauthorized.WithMessage("A bearer session token is required")
		}

		claims := &SessionClaims{}
		if _, err := jwt.ParseWithClaims(raw, claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		); err != nil {
			return apperrors.ErrInvalidToken
		}

		if id := c.Params("id"); id != "" && id != claims.SessionID {
			return apperrors.ErrForbidden.WithMessage("Token does not belong to this session")
		}

		c.Locals("session_id", claims.SessionID)
		c.Locals("sender", claims.Sender)
		c.SetUserContext(logger.WithSession(c.UserContext(), claims.SessionID))
		return c.Next()
	}
}

// GetSessionID is empty on routes without SessionAuth.
func GetSessionID(c *fiber.Ctx) string {
	id, _ := c.Locals("session_id").(string)
	return id
}

// GetSender is the wallet address the session was started from.
func GetSender(c *fiber.Ctx) string {
	sender, _ := c.Locals("sender").(string)
	return sender
}
