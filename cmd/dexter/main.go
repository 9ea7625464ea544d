package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dexter"
	"github.com/hupe1980/dexter/agent"
	"github.com/hupe1980/dexter/config"
	"github.com/hupe1980/dexter/tool"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
	timeout    time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dexter",
	Short: "dexter - conversational assistant that acts through code",
	Long: `dexter is a conversational assistant. Replies from the language model may
contain fenced code actions; dexter runs them in a persistent interpreter,
feeds the result back and keeps going until the model answers in prose.

Long running work is handed to background agents whose results are folded
back into the conversation once they finish.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts a read-eval-print loop. Lines starting with a slash are commands:

  /new             start a new conversation
  /session <tag>   mirror the conversation into a named session ("-" stops)
  /load <tag>      continue a stored session
  /attach <file>   send an image or video with the next message
  /tasks           list background tasks
  /quit            leave`,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Submit a single message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or $HOME/.dexter/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "override llm.provider (openai, anthropic, gemini, mock)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "timeout for a single submission")

	askCmd.Flags().String("session", "", "mirror the exchange into a named session")

	rootCmd.AddCommand(chatCmd, askCmd, sessionsCmd, promptCmd, agentsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if provider != "" {
		cfg.LLM.Provider = provider
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newDexter wires a Dexter with the built-in tools and agents.
func newDexter(ctx context.Context, cfg *config.Config) (*dexter.Dexter, error) {
	llm, err := dexter.NewModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return dexter.New(ctx, func(o *dexter.Options) {
		o.Config = cfg
		o.Model = llm
		o.Tools = builtinTools()
		o.Agents = []dexter.AgentRegistration{{
			Agent: agent.NewModelAgent("Research Agent", llm, func(o *agent.ModelAgentOptions) {
				o.Description = "Answers a research question in depth. Use it for questions that need a long, careful answer."
				o.Instruction = agent.NewDatedInstruction("Today is {{current_date}}. You are a meticulous researcher. Answer thoroughly and explain your reasoning.", time.Now)
				o.Model = cfg.LLM.Model
			}),
		}}
	})
}

func builtinTools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionTool(
			"current_time",
			"Return the current local date and time.",
			nil,
			func(context.Context, map[string]any) (any, error) {
				return time.Now().Format("Monday, 02 January 2006 15:04:05 MST"), nil
			},
			func(o *tool.FunctionToolOptions) { o.Returns = "the formatted local time" },
		),
	}
}

// withTimeout bounds a single submission by the --timeout flag.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDexter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	if tag, _ := cmd.Flags().GetString("session"); tag != "" {
		if err := d.Engine().SetSessionTag(tag); err != nil {
			return err
		}
	}

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	message := strings.Join(args, " ")
	reply, err := d.Submit(ctx, message, nil)
	if err != nil {
		return err
	}
	printReply(cmd, reply)
	return nil
}

func errorf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
