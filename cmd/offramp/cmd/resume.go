package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/session"
)

var (
	resumeQuery string
	resumePhone string
	resumeYes   bool
	resumeWatch bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume [SESSION_ID]",
	Short: "Continue an interrupted offramp",
	Long: `Continue a saved session from the step it stopped at.

Without a session ID the most recent unfinished session is used. With
--query the session is rebuilt from its shareable query string, as printed
by 'offramp sessions show --query'.`,
	Example: `  offramp resume
  offramp resume 3f0c...
  offramp resume --query 'provider=kotanipay&requestId=req-1&txHash=0x...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringVarP(&resumeQuery, "query", "q", "", "rebuild the session from a query string")
	resumeCmd.Flags().StringVarP(&resumePhone, "phone", "p", "", "recipient phone number")
	resumeCmd.Flags().BoolVarP(&resumeYes, "yes", "y", false, "do not ask before sending or retrying")
	resumeCmd.Flags().BoolVarP(&resumeWatch, "watch", "w", false, "follow the payout status after submission")
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(newBackend())
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	var s *session.Session
	switch {
	case resumeQuery != "":
		q, perr := url.ParseQuery(strings.TrimPrefix(resumeQuery, "?"))
		if perr != nil {
			return apperrors.ErrValidation.WithDetails("query is not URL encoded")
		}
		s, err = orch.Resume(ctx, q)
	case len(args) == 1:
		s, err = orch.Get(ctx, args[0])
	default:
		s, err = latestUnfinished(ctx, orch)
	}
	if err != nil {
		return err
	}

	output.Info(fmt.Sprintf("Resuming session %s at %s", s.ID, s.State))
	return runFlow(ctx, orch, s.ID, flowOptions{
		phone: resumePhone,
		yes:   resumeYes,
		watch: resumeWatch,
	})
}

func latestUnfinished(ctx context.Context, orch *orchestrator.Orchestrator) (*session.Session, error) {
	list, err := orch.List(ctx)
	if err != nil {
		return nil, err
	}
	// newest first
	for _, s := range list {
		if !s.State.IsTerminal() {
			return s, nil
		}
	}
	return nil, apperrors.ErrSessionNotFound.WithMessage("no unfinished session to resume")
}
