package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	ConfigPath    string
	DataPath      string
	Backend       string
	PersistOnExit bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sheetmyself CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// Execute runs the CLI with os.Args and releases storage even when the
// command fails.
func Execute(ctx context.Context) error {
	cmd, e := newRootCommand()
	defer e.close()
	return cmd.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, *env) {
	opts := &RootOptions{}
	e := &env{opts: opts}

	cmd := &cobra.Command{
		Use:   "sheetmyself",
		Short: "sheetmyself - a character sheet you keep yourself",
		Long: `A hierarchical document of labelled values, persisted between runs.

The default layout tracks a player name and a list of skills with dated
practice records. Any other layout can be built with add, set and reorder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := e.setup(cmd); err != nil {
				return e.formatter(cmd).Fail("failed to start", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.DataPath, "data", "", "document location (overrides data_path)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend (file|sqlite|memory)")
	cmd.PersistentFlags().BoolVar(&opts.PersistOnExit, "persist-on-exit", true, "save the session document on exit")

	cmd.AddCommand(NewInitCommand(e))
	cmd.AddCommand(documentCommands(e)...)
	cmd.AddCommand(NewPlayerCommand(e))
	cmd.AddCommand(NewSkillCommand(e))
	cmd.AddCommand(NewSessionCommand(e))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd, e
}

// documentCommands are the generic editing commands, shared by the root
// command and the session shell.
func documentCommands(e *env) []*cobra.Command {
	return []*cobra.Command{
		NewShowCommand(e),
		NewAddCommand(e),
		NewSetCommand(e),
		NewRenameCommand(e),
		NewRemoveCommand(e),
		NewReorderCommand(e),
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
