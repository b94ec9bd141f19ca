package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rahataid/rahat-offramp/pkg/response"
)

const (
	testSecret = "session-secret"
	testSender = "0x1111111111111111111111111111111111111111"
)

func sessionApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	app.Get("/sessions/:id/status", SessionAuth(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(GetSessionID(c) + " " + GetSender(c))
	})
	return app
}

func TestSessionAuth(t *testing.T) {
	valid, err := IssueSessionToken(testSecret, "sess-1", testSender, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken error: %v", err)
	}
	expired, _ := IssueSessionToken(testSecret, "sess-1", testSender, -time.Minute)
	foreign, _ := IssueSessionToken("another-secret", "sess-1", testSender, time.Hour)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{SessionID: "sess-1"}).
		SignedString([]byte(testSecret))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, &SessionClaims{
		SessionID:        "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"no header", "/sessions/sess-1/status", "", 401},
		{"basic scheme", "/sessions/sess-1/status", "Basic dXNlcjpwYXNz", 401},
		{"empty bearer", "/sessions/sess-1/status", "Bearer ", 401},
		{"garbage token", "/sessions/sess-1/status", "Bearer not-a-jwt", 401},
		{"expired", "/sessions/sess-1/status", "Bearer " + expired, 401},
		{"other secret", "/sessions/sess-1/status", "Bearer " + foreign, 401},
		{"missing expiry", "/sessions/sess-1/status", "Bearer " + noExpiry, 401},
		{"unexpected algorithm", "/sessions/sess-1/status", "Bearer " + hs512, 401},
		{"other session", "/sessions/sess-2/status", "Bearer " + valid, 403},
		{"valid", "/sessions/sess-1/status", "Bearer " + valid, 200},
	}

	app := sessionApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, body := do(t, app, req)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if tt.status == 200 && body != "sess-1 "+testSender {
				t.Errorf("locals = %q", body)
			}
		})
	}
}

func TestSessionAuth_NoSecret(t *testing.T) {
	app := fiber.New()
	app.Get("/sessions/:id/status", SessionAuth(""), func(c *fiber.Ctx) error {
		return c.SendString("[" + GetSessionID(c) + "]")
	})

	resp, body := do(t, app, httptest.NewRequest("GET", "/sessions/any/status", nil))
	if resp.StatusCode != 200 || body != "[]" {
		t.Errorf("got %d %q, want 200 with no session local", resp.StatusCode, body)
	}
}
