package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sheetmyself/internal/sheet"
)

// EntityView is the JSON form of an entity and its live descendants.
type EntityView struct {
	ID         string       `json:"id"`
	Label      string       `json:"label"`
	Type       sheet.Kind   `json:"type"`
	Kind       sheet.Kind   `json:"kind"`
	Value      any          `json:"value"`
	CreatedAt  string       `json:"created_at"`
	ModifiedAt string       `json:"modified_at"`
	Children   []EntityView `json:"children,omitempty"`
}

// ShowResult is the payload of the show command.
type ShowResult struct {
	DocumentID string       `json:"document_id"`
	Entities   []EntityView `json:"entities"`
}

// MutationResult is the payload of add, set, rename, rm and reorder.
type MutationResult struct {
	Action string `json:"action"`
	ID     string `json:"id"`
	Label  string `json:"label,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (r MutationResult) String() string {
	switch {
	case r.Value != "":
		return fmt.Sprintf("%s %s = %s (%s)", r.Action, r.Label, r.Value, r.ID)
	case r.Label != "":
		return fmt.Sprintf("%s %s (%s)", r.Action, r.Label, r.ID)
	default:
		return fmt.Sprintf("%s %s", r.Action, r.ID)
	}
}

// resolveRef turns a command-line reference into an id. A reference is a
// UUID, "root", or a slash-separated label path from the root such as
// "Skills/Running". Each path segment picks the first live child with that
// label.
func resolveRef(doc *sheet.Document, ref string) (sheet.SheetID, error) {
	if ref == "" || ref == "/" {
		return sheet.Root, nil
	}
	if id, err := sheet.ParseID(ref); err == nil {
		return id, nil
	}
	id := sheet.Root
	for _, segment := range strings.Split(strings.Trim(ref, "/"), "/") {
		next, err := childByLabel(doc, id, segment)
		if err != nil {
			return sheet.Root, fmt.Errorf("resolve %q: %w", ref, err)
		}
		id = next
	}
	return id, nil
}

// childByLabel finds parent's first live child labelled label, or accepts
// an id.
func childByLabel(doc *sheet.Document, parent sheet.SheetID, label string) (sheet.SheetID, error) {
	if id, err := sheet.ParseID(label); err == nil {
		return id, nil
	}
	children, err := doc.ListChildren(parent)
	if err != nil {
		return sheet.Root, err
	}
	label = norm.NFC.String(label)
	for _, c := range children {
		if c.Label == label {
			return c.ID, nil
		}
	}
	return sheet.Root, fmt.Errorf("%w: no entity labelled %q", sheet.ErrNotFound, label)
}

func viewOf(doc *sheet.Document, e sheet.Entity) (EntityView, error) {
	v := EntityView{
		ID:         e.ID.String(),
		Label:      e.Label,
		Type:       e.Declared,
		Kind:       e.Value.Kind(),
		Value:      payload(e.Value),
		CreatedAt:  e.CreatedAt.Format(sheet.TimeFormat),
		ModifiedAt: e.ModifiedAt.Format(sheet.TimeFormat),
	}
	if e.Value.Kind() != sheet.KindList {
		return v, nil
	}
	children, err := doc.ListChildren(e.ID)
	if err != nil {
		return v, err
	}
	for _, c := range children {
		cv, err := viewOf(doc, c)
		if err != nil {
			return v, err
		}
		v.Children = append(v.Children, cv)
	}
	return v, nil
}

// payload unwraps a value for JSON output. Lists have no payload.
func payload(v sheet.Value) any {
	switch v.Kind() {
	case sheet.KindText:
		s, _ := v.AsText()
		return s
	case sheet.KindNumber:
		f, _ := v.AsNumber()
		return f
	case sheet.KindBool:
		b, _ := v.AsBool()
		return b
	default:
		return nil
	}
}

// writeTree prints views as an indented outline.
func writeTree(b *strings.Builder, views []EntityView, depth int) {
	for _, v := range views {
		indent := strings.Repeat("  ", depth)
		if v.Kind == sheet.KindList {
			fmt.Fprintf(b, "%s%s/  (%s)\n", indent, v.Label, v.ID)
		} else {
			fmt.Fprintf(b, "%s%s = %v  (%s)\n", indent, v.Label, v.Value, v.ID)
		}
		writeTree(b, v.Children, depth+1)
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show [ref]",
		Short: "Print the sheet, or one entity and its children",
		Long: `Print the sheet as an outline. List entities end in "/"; every line
carries the entity id.

A ref is an id, "root", or a label path such as "Skills/Running".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runShow(e, ref, cmd)
		},
	}
}

func runShow(e *env, ref string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	doc, err := e.document(cmd.Context())
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	id, err := resolveRef(doc, ref)
	if err != nil {
		return f.Fail("show failed", err)
	}

	var entities []sheet.Entity
	if id.IsRoot() {
		entities, err = doc.ListChildren(sheet.Root)
	} else {
		var one sheet.Entity
		one, err = doc.Query(id)
		entities = []sheet.Entity{one}
	}
	if err != nil {
		return f.Fail("show failed", err)
	}

	result := ShowResult{DocumentID: doc.ID().String(), Entities: []EntityView{}}
	for _, ent := range entities {
		v, err := viewOf(doc, ent)
		if err != nil {
			return f.Fail("show failed", err)
		}
		result.Entities = append(result.Entities, v)
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	var b strings.Builder
	writeTree(&b, result.Entities, 0)
	if b.Len() == 0 {
		b.WriteString("(empty sheet)\n")
	}
	fmt.Fprint(f.Writer, b.String())
	return nil
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	Type string // declared type
	Kind string // kind of the initial value
}

// NewAddCommand creates the add command.
func NewAddCommand(e *env) *cobra.Command {
	opts := &AddOptions{}

	cmd := &cobra.Command{
		Use:   "add <parent> <label> [value]",
		Short: "Append an entity under a parent",
		Long: `Append an entity as the last child of parent ("root" for the top level).

The value is parsed according to --kind, which defaults to --type when that
is not "any", and to text otherwise. Lists take no value.

Examples:
  sheetmyself add root Level 3 --type number
  sheetmyself add root Journal --type list
  sheetmyself add Skills Running --type list`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(e, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", string(sheet.KindAny), "declared type (any|text|number|bool|list)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind of the initial value (text|number|bool|list)")

	return cmd
}

func runAdd(e *env, opts *AddOptions, args []string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	declared, err := sheet.ParseKind(opts.Type)
	if err != nil {
		return f.Fail("add failed", err)
	}
	kind := sheet.Kind(opts.Kind)
	if kind == "" {
		kind = declared
		if kind == sheet.KindAny {
			kind = sheet.KindText
		}
	}
	raw := ""
	if len(args) == 3 {
		raw = args[2]
	} else if kind != sheet.KindList && kind != sheet.KindText {
		return f.Fail("add failed", fmt.Errorf("%w: a %s value is required", sheet.ErrInvalidArgument, kind))
	}
	value, err := sheet.ParseValue(kind, raw)
	if err != nil {
		return f.Fail("add failed", err)
	}

	doc, err := e.document(ctx)
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	parent, err := resolveRef(doc, args[0])
	if err != nil {
		return f.Fail("add failed", err)
	}
	id, err := doc.CreateTypedEntity(parent, args[1], declared, value)
	if err != nil {
		return f.Fail("add failed", err)
	}
	if err := e.commit(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}

	created, _ := doc.Query(id)
	result := MutationResult{Action: "added", ID: id.String(), Label: created.Label}
	if kind != sheet.KindList {
		result.Value = value.String()
	}
	return f.Success(result)
}

// SetOptions holds flags for the set command.
type SetOptions struct {
	Kind string
}

// NewSetCommand creates the set command.
func NewSetCommand(e *env) *cobra.Command {
	opts := &SetOptions{}

	cmd := &cobra.Command{
		Use:   "set <ref> <value>",
		Short: "Replace an entity's value",
		Long: `Replace an entity's value.

The value is parsed as the entity's declared type, or as the kind of its
current value for fields declared "any". Use --kind to change the kind of
an "any" field.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(e, opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind of the new value (text|number|bool|list)")

	return cmd
}

func runSet(e *env, opts *SetOptions, ref, raw string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	doc, err := e.document(ctx)
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	id, err := resolveRef(doc, ref)
	if err != nil {
		return f.Fail("set failed", err)
	}
	current, err := doc.Query(id)
	if err != nil {
		return f.Fail("set failed", err)
	}

	kind := sheet.Kind(opts.Kind)
	if kind == "" {
		kind = current.Declared
		if kind == sheet.KindAny {
			kind = current.Value.Kind()
		}
	}
	value, err := sheet.ParseValue(kind, raw)
	if err != nil {
		return f.Fail("set failed", err)
	}
	if err := doc.UpdateValue(id, value); err != nil {
		return f.Fail("set failed", err)
	}
	if err := e.commit(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}
	return f.Success(MutationResult{Action: "set", ID: id.String(), Label: current.Label, Value: value.String()})
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <ref> <label>",
		Short: "Change an entity's label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(e, args[0], args[1], cmd)
		},
	}
}

func runRename(e *env, ref, label string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	doc, err := e.document(ctx)
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	id, err := resolveRef(doc, ref)
	if err != nil {
		return f.Fail("rename failed", err)
	}
	if err := doc.Rename(id, label); err != nil {
		return f.Fail("rename failed", err)
	}
	if err := e.commit(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}
	renamed, _ := doc.Query(id)
	return f.Success(MutationResult{Action: "renamed", ID: id.String(), Label: renamed.Label})
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <ref>",
		Aliases: []string{"delete"},
		Short:   "Delete an entity and everything under it",
		Long: `Delete an entity and all of its descendants.

Deleted ids are retired: they are never reused and no longer resolve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(e, args[0], cmd)
		},
	}
}

func runRemove(e *env, ref string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	doc, err := e.document(ctx)
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	id, err := resolveRef(doc, ref)
	if err != nil {
		return f.Fail("rm failed", err)
	}
	if err := doc.DeleteEntity(id); err != nil {
		return f.Fail("rm failed", err)
	}
	if err := e.commit(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}
	return f.Success(MutationResult{Action: "removed", ID: id.String()})
}

// NewReorderCommand creates the reorder command.
func NewReorderCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <parent> <child>...",
		Short: "Set the display order of a parent's children",
		Long: `Set the display order of a parent's children. The children must be
exactly the parent's live children, each named once, by id or by label.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReorder(e, args[0], args[1:], cmd)
		},
	}
}

func runReorder(e *env, parentRef string, childRefs []string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	doc, err := e.document(ctx)
	if err != nil {
		return f.Fail("failed to load sheet", err)
	}
	parent, err := resolveRef(doc, parentRef)
	if err != nil {
		return f.Fail("reorder failed", err)
	}
	order := make([]sheet.SheetID, 0, len(childRefs))
	for _, ref := range childRefs {
		id, err := childByLabel(doc, parent, ref)
		if err != nil {
			return f.Fail("reorder failed", err)
		}
		order = append(order, id)
	}
	if err := doc.Reorder(parent, order); err != nil {
		return f.Fail("reorder failed", err)
	}
	if err := e.commit(ctx, doc); err != nil {
		return f.Fail("failed to save sheet", err)
	}
	return f.Success(MutationResult{Action: "reordered", ID: parent.String()})
}
