package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/retrieva/go/pkg/cli"
	"github.com/haivivi/retrieva/go/pkg/session"
)

type sessionList []session.Meta

func (l sessionList) Table() cli.Table {
	t := cli.Table{Headers: []string{"ID", "NAME", "CREATED"}}
	for _, m := range l {
		t.Rows = append(t.Rows, []string{m.ID, m.Name, cli.FormatTime(m.CreatedAt)})
	}
	return t
}

type deleteResult struct {
	Status    string `json:"status" yaml:"status"`
	SessionID string `json:"session_id" yaml:"session_id"`
	Warning   string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "List and delete sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		list, err := a.registry.List()
		if err != nil {
			return err
		}
		if len(list) == 0 && formatOutput == string(cli.FormatTable) {
			fmt.Println("No sessions.")
			fmt.Println("Create one with: retrieva upload <file>")
			return nil
		}
		return output(sessionList(list))
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session and its index",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		res, err := a.registry.Delete(ctx, args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		out := deleteResult{Status: res.Outcome.String(), SessionID: res.ID}
		if res.Partial() {
			out.Warning = fmt.Sprintf("session files could not be removed: %v", res.CleanupErr)
			cli.PrintWarning("%s", out.Warning)
		}
		return output(out)
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
