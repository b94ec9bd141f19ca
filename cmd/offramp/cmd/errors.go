package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
)

// PrintError reports a command failure in the selected format.
func PrintError(err error) {
	if errors.Is(err, context.Canceled) {
		output.Warning("Interrupted")
		return
	}

	appErr, ok := apperrors.As(err)
	if getFormat() == "json" {
		body := map[string]any{"error": err.Error()}
		if ok {
			body = map[string]any{"error": appErr}
		}
		_ = output.JSON(body)
		return
	}

	if !ok {
		output.Error(err.Error())
		return
	}
	msg := fmt.Sprintf("%s (%s)", appErr.Message, appErr.Code)
	if appErr.Details != nil {
		msg += fmt.Sprintf(": %v", appErr.Details)
	}
	output.Error(msg)
	if apperrors.IsRetryable(err) {
		output.Info("This error is temporary, try again shortly")
	}
}
