package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dexter/agent"
)

// promptCmd inspects the system prompt
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Inspect the system prompt",
}

var promptShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the system prompt sent with the next message",
	Args:  cobra.NoArgs,
	RunE:  runPromptShow,
}

// agentsCmd inspects and runs background agents
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and run background agents",
	Long: `Background agents are dispatched by code actions and run concurrently with
the conversation.

Available subcommands:
  list - Print the callable signature of every agent
  run  - Dispatch an agent directly and wait for its result`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the callable signature of every agent",
	Args:  cobra.NoArgs,
	RunE:  runAgentsList,
}

var agentsRunCmd = &cobra.Command{
	Use:   "run [agent] [task]",
	Short: "Dispatch an agent directly and wait for its result",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAgentsRun,
}

func init() {
	promptCmd.AddCommand(promptShowCmd)
	agentsCmd.AddCommand(agentsListCmd, agentsRunCmd)
}

func runPromptShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDexter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	text, err := d.Engine().SystemPrompt(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runAgentsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDexter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	out := cmd.OutOrStdout()
	for _, name := range d.Agents().Names() {
		a, _ := d.Agents().Get(name)
		fmt.Fprintln(out, agent.Signature(name, a))
	}
	return nil
}

func runAgentsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDexter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	h, err := d.DispatchAgent(ctx, args[0], strings.Join(args[1:], " "), nil)
	if err != nil {
		return err
	}
	errorf(cmd, "dispatched %s as %s", h.Name(), h.ID())

	result, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
