package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/store"
	"github.com/roach88/sheetmyself/internal/template"
)

// SessionOptions holds flags for the session command.
type SessionOptions struct {
	Prompt string
}

// NewSessionCommand creates the session command.
func NewSessionCommand(e *env) *cobra.Command {
	opts := &SessionOptions{}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Edit the sheet interactively",
		Long: `Read commands line by line and apply them to one open document.

Every editing command is available without the program name: show, add,
set, rename, rm, reorder, player and skill. Arguments with spaces are
double-quoted. Changes stay in memory until "save"; "quit", "exit" or end
of input closes the session, saving first unless --persist-on-exit=false.

When nothing is stored yet the session starts from the default template.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(e, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prompt, "prompt", "> ", "prompt printed before each line (empty for none)")

	return cmd
}

// newShell builds the command tree for one session line. It is rebuilt per
// line so flag values never leak between lines.
func newShell(e *env) *cobra.Command {
	shell := &cobra.Command{
		Use:           "sheet",
		Short:         "Session commands",
		Long:          `Session commands. Also: quit, exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	shell.CompletionOptions.DisableDefaultCmd = true
	shell.AddCommand(documentCommands(e)...)
	shell.AddCommand(NewPlayerCommand(e))
	shell.AddCommand(NewSkillCommand(e))
	shell.AddCommand(newSaveCommand(e))
	return shell
}

func newSaveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the open document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctrl, err := e.controller()
			if err != nil {
				return f.Fail("failed to open storage", err)
			}
			if err := ctrl.Save(cmd.Context(), e.doc); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			e.dirty = false
			if f.Format == "json" {
				return f.Success(map[string]bool{"saved": true})
			}
			return f.Success("Saved.")
		},
	}
}

// splitLine splits a session line into arguments. Fields are separated by
// spaces and may be double-quoted.
func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ' '
	r.TrimLeadingSpace = true
	args, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sheet.ErrInvalidArgument, err)
	}
	return args, nil
}

func runSession(e *env, opts *SessionOptions, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	ctrl, err := e.controller()
	if err != nil {
		return f.Fail("failed to open storage", err)
	}
	doc, err := ctrl.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		doc = sheet.New()
		if _, err := template.Default().Apply(doc); err != nil {
			return f.Fail("failed to create sheet", err)
		}
		e.dirty = true
		f.VerboseLog("No stored sheet at %s, starting from the default template", e.cfg.Path())
	case err != nil:
		return f.Fail("failed to load sheet", err)
	}

	e.session, e.doc = true, doc
	defer func() { e.session, e.doc = false, nil }()

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	defer close(done)
	lines, scanErr := readLines(cmd.InOrStdin(), done)
loop:
	for {
		if opts.Prompt != "" {
			fmt.Fprint(out, opts.Prompt)
		}
		var line string
		select {
		case <-ctx.Done():
			break loop
		case l, ok := <-lines:
			if !ok {
				if err := *scanErr; err != nil {
					e.logger.Error().Err(err).Msg("session input failed")
				}
				break loop
			}
			line = l
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := splitLine(line)
		if err != nil {
			_ = f.Fail("bad input", err)
			continue
		}
		switch args[0] {
		case "quit", "exit":
			break loop
		}

		shell := newShell(e)
		shell.SetArgs(args)
		shell.SetOut(out)
		shell.SetErr(cmd.ErrOrStderr())
		if err := shell.ExecuteContext(ctx); err != nil {
			var exitErr *ExitError
			if !errors.As(err, &exitErr) {
				// Unknown commands and flag errors come from cobra itself.
				_ = f.Error(ErrCodeGeneric, err.Error(), nil)
			}
			e.logger.Debug().Err(err).Str("line", line).Msg("session command failed")
		}
	}
	if ctx.Err() != nil {
		e.logger.Info().Err(ctx.Err()).Msg("session interrupted")
	}

	// Saving on exit must survive the interrupt that ended the session; the
	// controller's own timeout still bounds it.
	if err := ctrl.Shutdown(context.WithoutCancel(ctx), e.doc); err != nil {
		return f.Fail("failed to save sheet on exit", err)
	}
	switch {
	case ctrl.PersistOnExit():
		e.dirty = false
		f.VerboseLog("Saved on exit")
	case e.dirty:
		fmt.Fprintln(f.GetErrWriter(), "Unsaved changes discarded (persist-on-exit is off).")
	}
	return nil
}

// readLines scans r on its own goroutine so an interrupt never waits for
// input. The channel closes at end of input; the returned error is valid
// once it has closed. Sending stops when done closes.
func readLines(r io.Reader, done <-chan struct{}) (<-chan string, *error) {
	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr = scanner.Err()
	}()
	return lines, &scanErr
}
