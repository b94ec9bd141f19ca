package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
)

var (
	showQuery   bool
	sessionsAll bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Saved session commands",
	Long:  "List, inspect and cancel the sessions saved under ~/.offramp/sessions.",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel SESSION_ID",
	Short: "Cancel a session",
	Long: `Cancel a session so no further step runs for it.

Tokens already sent to escrow are not returned by cancelling, and an
executed payout cannot be called back; for those only status polling stops.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsCancel,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Delete a saved session file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsCancelCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	sessionsListCmd.Flags().BoolVar(&sessionsAll, "all", false, "include finished sessions")
	sessionsShowCmd.Flags().BoolVar(&showQuery, "query", false, "print the query string accepted by 'offramp resume --query'")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := sessionStore()
	if err != nil {
		return err
	}
	list, err := store.List(ctx)
	if err != nil {
		return err
	}

	if !sessionsAll {
		open := list[:0]
		for _, s := range list {
			if !s.State.IsTerminal() {
				open = append(open, s)
			}
		}
		list = open
	}

	if getFormat() == "json" {
		return output.JSON(list)
	}
	if len(list) == 0 {
		output.Info("No sessions")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			s.ID,
			s.ProviderSlug,
			s.Amount.String() + " " + s.Token,
			output.FormatStatus(string(s.State)),
			s.RequestID,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	output.Table([]string{"Session", "Provider", "Amount", "State", "Request", "Updated"}, rows)
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := sessionStore()
	if err != nil {
		return err
	}
	s, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if showQuery {
		q := s.ToQuery().Encode()
		if getFormat() == "json" {
			return output.JSON(map[string]string{"query": q})
		}
		fmt.Fprintln(output.Stdout, q)
		return nil
	}

	printSession(s)
	return nil
}

func runSessionsCancel(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(newBackend())
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	s, err := orch.Cancel(ctx, args[0])
	if err != nil {
		return err
	}
	if getFormat() == "json" {
		return output.JSON(s)
	}
	output.Success(fmt.Sprintf("Session %s is %s", s.ID, s.State))
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := sessionStore()
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, args[0]); err != nil {
		return err
	}
	output.Success("Deleted session " + args[0])
	return nil
}
