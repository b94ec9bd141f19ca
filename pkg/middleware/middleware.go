package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

const headerRequestID = "X-Request-ID"

// RequestID echoes or assigns X-Request-ID. The id goes into fiber locals for
// the response envelope and into the user context for logger.WithContext.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(headerRequestID, id)
		c.SetUserContext(logger.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// Tracing opens a server span per request and tags it with the offramp
// session when the route carries one.
func Tracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := telemetry.StartSpan(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", c.Method())),
		)
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.status_code", c.Response().StatusCode()),
		)
		if id := sessionParam(c); id != "" {
			span.SetAttributes(attribute.String("offramp.session_id", id))
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		return err
	}
}

// Logger writes one line per request. Client errors log at warn and server
// errors at error so a failing backend stands out from bad input.
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not run yet
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if e, ok := apperrors.As(err); ok {
				status = e.HTTPStatus
			} else if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		ctx := c.UserContext()
		if id := sessionParam(c); id != "" {
			ctx = logger.WithSession(ctx, id)
		}
		log := logger.WithContext(ctx)
		log.WithLevel(levelFor(status)).
			Str("method", c.Method()).
			Str("route", c.Route().Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
		return err
	}
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

func sessionParam(c *fiber.Ctx) string {
	if !strings.Contains(c.Route().Path, "/sessions/:id") {
		return ""
	}
	return c.Params("id")
}

// SecurityHeaders applies helmet with framing denied. Cross-origin embedding
// stays open so the docs page can load its assets.
func SecurityHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginEmbedderPolicy: "unsafe-none",
	})
}

type RateLimitConfig struct {
	Max      int
	Duration time.Duration
}

// RateLimiter caps requests per client IP in a fixed window. Session creation
// hits the offramp backend, so the service mounts it on POST /sessions.
func RateLimiter(cfg RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Duration,
		LimitReached: func(*fiber.Ctx) error {
			return apperrors.ErrRateLimited
		},
	})
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowCredentials bool
	MaxAge           int
}

// CORS allows browser wallets to drive sessions. Methods and headers are
// fixed to what the offramp routes accept.
func CORS(cfg CORSConfig) fiber.Handler {
	origins := "*"
	if len(cfg.AllowOrigins) > 0 {
		origins = strings.Join(cfg.AllowOrigins, ",")
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization," + headerRequestID,
		ExposeHeaders:    headerRequestID,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
