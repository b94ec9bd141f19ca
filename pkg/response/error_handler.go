package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
)

// ErrorHandler is the fiber error handler for every offramp route. AppErrors
// keep their code, kind and retryable flag; anything else becomes INTERNAL_ERROR.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.HTTPStatus >= fiber.StatusInternalServerError {
			logFailure(c, err).Str("code", appErr.Code).Msg("request failed")
		}
		return sendError(c, appErr.HTTPStatus, &ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Kind:      string(appErr.Kind),
			Retryable: appErr.Retryable,
			Details:   appErr.Details,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return sendError(c, fe.Code, &ErrorBody{Code: httpStatusToErrorCode(fe.Code), Message: fe.Message})
	}

	logFailure(c, err).Msg("unhandled error")
	return sendError(c, fiber.StatusInternalServerError, &ErrorBody{
		Code:    apperrors.ErrInternal.Code,
		Message: apperrors.ErrInternal.Message,
		Kind:    string(apperrors.KindInternal),
	})
}

func logFailure(c *fiber.Ctx, err error) *zerolog.Event {
	log := logger.WithContext(c.UserContext())
	return log.Error().Err(err).Str("path", c.Path())
}

// fiberCodes holds the statuses whose codes differ from their status text.
var fiberCodes = map[int]string{
	fiber.StatusUnprocessableEntity:   "UNPROCESSABLE",
	fiber.StatusTooManyRequests:       "RATE_LIMITED",
	fiber.StatusInternalServerError:   apperrors.ErrInternal.Code,
	fiber.StatusRequestEntityTooLarge: "BODY_TOO_LARGE",
}

// httpStatusToErrorCode turns a fiber status into an envelope code, so 404
// becomes NOT_FOUND.
func httpStatusToErrorCode(status int) string {
	if code, ok := fiberCodes[status]; ok {
		return code
	}
	text := http.StatusText(status)
	if text == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}
