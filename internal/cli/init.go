package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/store"
	"github.com/roach88/sheetmyself/internal/template"
)

// errSheetExists is returned by init when a document is already stored.
var errSheetExists = errors.New("a sheet is already stored")

// InitOptions holds flags for the init command.
type InitOptions struct {
	Template string
	Force    bool
}

// InitResult is the payload of the init command.
type InitResult struct {
	DocumentID string   `json:"document_id"`
	Path       string   `json:"path"`
	Backend    string   `json:"backend"`
	Fields     []string `json:"fields"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Initialized sheet %s at %s (%d fields)", r.DocumentID, r.Path, len(r.Fields))
}

// NewInitCommand creates the init command.
func NewInitCommand(e *env) *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new sheet",
		Long: `Create a new sheet from a template and save it.

Without --template the built-in character sheet is used: a "Player Name"
text field and an empty "Skills" list. A template is a CUE file:

  field: {
    "Player Name": {type: "text", default: "Ava"}
    Skills: {type: "list", field: {Running: {type: "list"}}}
  }

Refuses to replace a stored sheet unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(e, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Template, "template", "t", "", "CUE template file")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing sheet")

	return cmd
}

func runInit(e *env, opts *InitOptions, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	tmpl := template.Default()
	if opts.Template != "" {
		var err error
		tmpl, err = template.Load(opts.Template)
		if err != nil {
			return f.Fail("failed to load template", err)
		}
		f.VerboseLog("Loaded template %s (%d fields)", opts.Template, len(tmpl.Fields))
	}

	ctrl, err := e.controller()
	if err != nil {
		return f.Fail("failed to open storage", err)
	}
	if !opts.Force {
		_, err := ctrl.Load(ctx)
		switch {
		case err == nil:
			return f.Fail("init refused", fmt.Errorf("%w at %s, use --force to replace it", errSheetExists, e.cfg.Path()))
		case !errors.Is(err, store.ErrNotFound):
			return f.Fail("failed to check for an existing sheet", err)
		}
	}

	doc := sheet.New()
	ids, err := tmpl.Apply(doc)
	if err != nil {
		return f.Fail("failed to apply template", err)
	}
	if err := ctrl.Save(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}

	result := InitResult{
		DocumentID: doc.ID().String(),
		Path:       e.cfg.Path(),
		Backend:    e.cfg.Backend,
		Fields:     make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		ent, err := doc.Query(id)
		if err != nil {
			return f.Fail("init failed", err)
		}
		result.Fields = append(result.Fields, ent.Label)
	}
	return f.Success(result)
}
