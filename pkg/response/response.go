// Package response writes the JSON envelope every offramp API route returns:
//
//	{"data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
//	{"error": {"code": "WALLET_NOT_FOUND", "kind": "not_found", ...}, "meta": {...}}
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

const apiVersion = "v1"

type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Meta  Meta       `json:"meta"`
}

// ErrorBody mirrors apperrors.AppError so clients can tell a missing wallet
// from a backend that is still loading.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type Meta struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// PaginatedData wraps one page of offramp requests.
type PaginatedData struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

func Success(c *fiber.Ctx, data any) error {
	return send(c, fiber.StatusOK, data)
}

func Created(c *fiber.Ctx, data any) error {
	return send(c, fiber.StatusCreated, data)
}

// Accepted answers a transfer whose receipt is still being awaited.
func Accepted(c *fiber.Ctx, data any) error {
	return send(c, fiber.StatusAccepted, data)
}

// Paginated writes a page the caller has already cut from total items.
func Paginated(c *fiber.Ctx, items any, page, perPage int, total int64) error {
	perPage = max(perPage, 1)
	pages := int((total + int64(perPage) - 1) / int64(perPage))

	return send(c, fiber.StatusOK, PaginatedData{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: pages,
			HasMore:    page < pages,
		},
	})
}

func send(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{Data: data, Meta: metaFor(c)})
}

func sendError(c *fiber.Ctx, status int, body *ErrorBody) error {
	return c.Status(status).JSON(Response{Error: body, Meta: metaFor(c)})
}

func metaFor(c *fiber.Ctx) Meta {
	id := GetRequestID(c)
	if id == "" {
		id = uuid.NewString()
		c.Locals("request_id", id)
	}
	return Meta{
		RequestID: id,
		TraceID:   telemetry.TraceID(c.UserContext()),
		Timestamp: time.Now().UTC(),
		Version:   apiVersion,
	}
}

// GetRequestID prefers the id set by the RequestID middleware and falls
// back to the inbound header.
func GetRequestID(c *fiber.Ctx) string {
	if id, _ := c.Locals("request_id").(string); id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}
