// Package template builds new sheets from CUE field declarations.
//
// A template lists the entities a fresh document starts with, in order:
//
//	field: {
//		"Player Name": {type: "text", default: "New Player Name"}
//		Skills: {
//			type: "list"
//			field: Running: {type: "list"}
//		}
//	}
//
// type is one of any, text, number, bool or list. default is optional and
// must match type; list fields take no default and may nest their own field
// block.
package template

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sheetmyself/internal/sheet"
)

//go:embed default.cue
var defaultSource []byte

// Field is one declared entity.
type Field struct {
	Label   string
	Kind    sheet.Kind
	Default sheet.Value
	Fields  []Field
	Pos     token.Pos
}

// Template is an ordered list of top-level fields.
type Template struct {
	Fields []Field
}

// Error reports a template problem at a source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the built-in character sheet template.
func Default() *Template {
	t, err := Compile(defaultSource, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("built-in template: %v", err))
	}
	return t
}

// Load compiles the template file at path.
func Load(path string) (*Template, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return Compile(src, path)
}

// Compile parses and validates CUE source.
func Compile(src []byte, filename string) (*Template, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	fieldsVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldsVal.Exists() {
		return nil, &Error{Field: "field", Message: "field block is required", Pos: v.Pos()}
	}
	fields, err := compileFields(fieldsVal, "field")
	if err != nil {
		return nil, err
	}
	return &Template{Fields: fields}, nil
}

func compileFields(v cue.Value, path string) ([]Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []Field
	for iter.Next() {
		f, err := compileField(iter.Label(), iter.Value(), path+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func compileField(label string, v cue.Value, path string) (Field, error) {
	f := Field{Label: label, Pos: v.Pos()}

	iter, err := v.Fields()
	if err != nil {
		return f, &Error{Field: path, Message: "must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		switch iter.Label() {
		case "type", "default", "field":
		default:
			return f, &Error{Field: path + "." + iter.Label(), Message: "unknown key", Pos: iter.Value().Pos()}
		}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return f, &Error{Field: path, Message: "type is required", Pos: v.Pos()}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Kind, err = sheet.ParseKind(typeName)
	if err != nil {
		return f, &Error{Field: path + ".type", Message: fmt.Sprintf("unknown type %q", typeName), Pos: typeVal.Pos()}
	}

	f.Default, err = compileDefault(f.Kind, v.LookupPath(cue.ParsePath("default")), path)
	if err != nil {
		return f, err
	}

	nested := v.LookupPath(cue.ParsePath("field"))
	if nested.Exists() {
		if f.Kind != sheet.KindList {
			return f, &Error{Field: path + ".field", Message: "only list fields may nest fields", Pos: nested.Pos()}
		}
		f.Fields, err = compileFields(nested, path+".field")
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

// compileDefault returns the initial value for a field. A missing default is
// the zero payload of the declared kind; "any" fields start as empty text.
func compileDefault(kind sheet.Kind, v cue.Value, path string) (sheet.Value, error) {
	if !v.Exists() {
		switch kind {
		case sheet.KindNumber:
			return sheet.Number(0), nil
		case sheet.KindBool:
			return sheet.Bool(false), nil
		case sheet.KindList:
			return sheet.List(), nil
		default:
			return sheet.Text(""), nil
		}
	}

	mismatch := func() error {
		return &Error{Field: path + ".default", Message: fmt.Sprintf("default does not match type %s", kind), Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.StringKind:
		if !kind.Accepts(sheet.KindText) {
			return sheet.Value{}, mismatch()
		}
		s, err := v.String()
		if err != nil {
			return sheet.Value{}, formatCUEError(err)
		}
		return sheet.Text(s), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		if !kind.Accepts(sheet.KindNumber) {
			return sheet.Value{}, mismatch()
		}
		n, err := v.Float64()
		if err != nil {
			return sheet.Value{}, formatCUEError(err)
		}
		return sheet.Number(n), nil
	case cue.BoolKind:
		if !kind.Accepts(sheet.KindBool) {
			return sheet.Value{}, mismatch()
		}
		b, err := v.Bool()
		if err != nil {
			return sheet.Value{}, formatCUEError(err)
		}
		return sheet.Bool(b), nil
	default:
		return sheet.Value{}, &Error{Field: path + ".default", Message: "default must be a string, number or bool", Pos: v.Pos()}
	}
}

// Apply creates the template's fields under the document root, in order,
// and returns the ids of the top-level entities.
func (t *Template) Apply(doc *sheet.Document) ([]sheet.SheetID, error) {
	return applyFields(doc, sheet.Root, t.Fields)
}

func applyFields(doc *sheet.Document, parent sheet.SheetID, fields []Field) ([]sheet.SheetID, error) {
	ids := make([]sheet.SheetID, 0, len(fields))
	for _, f := range fields {
		id, err := doc.CreateTypedEntity(parent, f.Label, f.Kind, f.Default)
		if err != nil {
			return ids, fmt.Errorf("apply template field %q: %w", f.Label, err)
		}
		if _, err := applyFields(doc, id, f.Fields); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
