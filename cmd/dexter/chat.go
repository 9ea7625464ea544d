package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dexter"
	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/engine"
)

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDexter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	fmt.Fprintf(cmd.OutOrStdout(), "dexter (%s/%s). Type /quit to leave.\n", d.Model().Info().Provider, d.Model().Info().Name)
	return newREPL(cmd, d).run(cmd.Context(), cmd.InOrStdin())
}

// repl reads user input line by line and routes it to the engine or to a
// slash command.
type repl struct {
	cmd        *cobra.Command
	d          *dexter.Dexter
	attachment *core.Attachment
}

func newREPL(cmd *cobra.Command, d *dexter.Dexter) *repl {
	return &repl{cmd: cmd, d: d}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := r.cmd.OutOrStdout()
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errorf(r.cmd, "error: %v", err)
		}
		if quit {
			return nil
		}
	}
}

// handle processes one line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.submit(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	eng := r.d.Engine()

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		eng.StartNewConversation()
		fmt.Fprintln(r.cmd.OutOrStdout(), "Started a new conversation.")
	case "/session":
		if arg == "" {
			fmt.Fprintf(r.cmd.OutOrStdout(), "Session: %s\n", orNone(eng.SessionTag()))
			return false, nil
		}
		if arg == "-" {
			arg = ""
		}
		if err := eng.SetSessionTag(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.cmd.OutOrStdout(), "Session: %s\n", orNone(arg))
	case "/load":
		if arg == "" {
			return false, errors.New("usage: /load <tag>")
		}
		if err := eng.LoadSession(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.cmd.OutOrStdout(), "Loaded session %s (%d turns).\n", arg, len(eng.Conversation())-1)
	case "/attach":
		a, err := readAttachment(arg)
		if err != nil {
			return false, err
		}
		r.attachment = a
		fmt.Fprintf(r.cmd.OutOrStdout(), "Attached %s as %s.\n", filepath.Base(arg), a.Kind)
	case "/tasks":
		printTasks(r.cmd, eng)
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

func (r *repl) submit(ctx context.Context, text string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	attachment := r.attachment
	r.attachment = nil

	reply, err := r.d.Submit(ctx, text, attachment)
	if err != nil {
		if last := r.d.Engine().LastReply(); last != nil && errors.Is(err, engine.ErrMaxActionSteps) {
			printReply(r.cmd, last)
		}
		return err
	}
	printReply(r.cmd, reply)
	return nil
}

func printReply(cmd *cobra.Command, reply *engine.Reply) {
	out := cmd.OutOrStdout()
	speech := strings.TrimSpace(reply.Speech)
	if speech != "" {
		fmt.Fprintln(out, speech)
	}
	for _, id := range reply.PendingTasks {
		fmt.Fprintf(out, "[background task %s started]\n", id)
	}
}

func printTasks(cmd *cobra.Command, eng *engine.Engine) {
	out := cmd.OutOrStdout()
	tasks := eng.Tasks().List()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No background tasks.")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(out, "%s  %-10s %s\n", t.ID, t.Status, t.Name)
	}
}

// readAttachment loads a media file and classifies it by extension.
func readAttachment(path string) (*core.Attachment, error) {
	if path == "" {
		return nil, errors.New("usage: /attach <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kind := core.AttachmentImage
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".webm", ".mkv":
		kind = core.AttachmentVideo
	}
	return &core.Attachment{Data: base64.StdEncoding.EncodeToString(data), Kind: kind}, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
