package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dexter/config"
	"github.com/hupe1980/dexter/history"
	"github.com/hupe1980/dexter/logging"
)

// sessionsCmd manages named sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage named sessions",
	Long: `A session is a named, append-only log of user/assistant exchanges that can be
loaded into a fresh conversation later.

Available subcommands:
  list   - List stored sessions
  show   - Print the exchanges of a session
  delete - Remove a session`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [tag]",
	Short: "Print the exchanges of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [tag]",
	Short: "Remove a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
}

// openStore opens the history store without building a model.
func openStore() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newStore(cfg)
}

func newStore(cfg *config.Config) (*history.Store, error) {
	logger, err := logging.New(logging.Options{
		Backend: cfg.Logging.Backend,
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Format:  cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	return history.New(func(o *history.Options) {
		o.MemoryDir = cfg.Storage.MemoryDir
		o.SessionsDir = cfg.Storage.SessionsDir
		o.Logger = logger
	})
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	tags := store.ListSessions()
	if len(tags) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
		return nil
	}
	for _, tag := range tags {
		fmt.Fprintln(cmd.OutOrStdout(), tag)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	tag := args[0]
	if !history.ValidTag(tag) {
		return fmt.Errorf("session tag %q: %w", tag, history.ErrInvalidTag)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	records := store.SessionHistory(tag)
	if len(records) == 0 {
		return fmt.Errorf("session %q not found", tag)
	}

	out := cmd.OutOrStdout()
	for _, r := range records {
		if r.IsSystem() {
			if text := r.Content.String(); text != "" {
				fmt.Fprintf(out, "[system]\n%s\n\n", text)
			}
			continue
		}
		if r.User != nil {
			fmt.Fprintf(out, "[user]\n%s\n", r.User.Text())
		}
		if r.Assistant != nil {
			fmt.Fprintf(out, "[assistant]\n%s\n", r.Assistant.Text())
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	tag := args[0]
	if !history.ValidTag(tag) {
		return fmt.Errorf("session tag %q: %w", tag, history.ErrInvalidTag)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	if !store.DeleteSession(tag) {
		return fmt.Errorf("session %q not found", tag)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s.\n", tag)
	return nil
}
