package harness

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and id sequence.
type Harness struct {
	doc    *sheet.Document
	opts   []sheet.Option
	refs   map[string]sheet.SheetID
	logger zerolog.Logger
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger logs every step. Runs are silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh document. Step failures that the
// scenario did not expect, failed checks and round-trip mismatches are
// recorded in Result.Errors; Run itself only fails on scenario bugs the
// loader cannot catch.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		opts: []sheet.Option{
			sheet.WithIDGenerator(testutil.NewSequenceIDs()),
			sheet.WithClock(testutil.NewDeterministicClock()),
		},
		refs:   map[string]sheet.SheetID{"root": sheet.Root},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.doc = sheet.New(h.opts...)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(i, &step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	result.Document = h.doc
	for ref, id := range h.refs {
		if ref != "root" {
			result.Refs[ref] = id
		}
	}
	return result, nil
}

func (h *Harness) resolve(ref string) (sheet.SheetID, error) {
	id, ok := h.refs[ref]
	if !ok {
		return sheet.Root, fmt.Errorf("unknown ref %q", ref)
	}
	return id, nil
}

func (h *Harness) execute(i int, step *Step, result *Result) error {
	var (
		target = step.Target
		opErr  error
	)

	switch step.Op {
	case OpCreate:
		target = step.Parent
		parent, err := h.resolve(step.Parent)
		if err != nil {
			return err
		}
		kind := sheet.KindAny
		if step.Type != "" {
			kind = sheet.Kind(step.Type)
		}
		var id sheet.SheetID
		id, opErr = h.doc.CreateTypedEntity(parent, step.Label, kind, step.Value.Value)
		if opErr == nil && step.Ref != "" {
			h.refs[step.Ref] = id
		}
	case OpUpdate:
		id, err := h.resolve(step.Target)
		if err != nil {
			return err
		}
		opErr = h.doc.UpdateValue(id, step.Value.Value)
	case OpRename:
		id, err := h.resolve(step.Target)
		if err != nil {
			return err
		}
		opErr = h.doc.Rename(id, step.Label)
	case OpDelete:
		id, err := h.resolve(step.Target)
		if err != nil {
			return err
		}
		opErr = h.doc.DeleteEntity(id)
	case OpReorder:
		target = step.Parent
		parent, err := h.resolve(step.Parent)
		if err != nil {
			return err
		}
		order := make([]sheet.SheetID, 0, len(step.Order))
		for _, ref := range step.Order {
			id, err := h.resolve(ref)
			if err != nil {
				return err
			}
			order = append(order, id)
		}
		opErr = h.doc.Reorder(parent, order)
	case OpRoundtrip:
		h.roundtrip(i, result)
		result.AddTrace(i, step.Op, "", "ok")
		return nil
	case OpCheck:
		id, err := h.resolve(step.Target)
		if err != nil {
			return err
		}
		for _, msg := range h.check(id, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] check %s: %s", i, step.Target, msg))
		}
		result.AddTrace(i, step.Op, step.Target, "ok")
		return nil
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	outcome := errorCode(opErr)
	result.AddTrace(i, step.Op, target, outcome)
	h.logger.Debug().Int("step", i).Str("op", step.Op).Str("target", target).Str("outcome", outcome).Msg("step executed")

	want := step.ExpectError
	if want == "" {
		want = "ok"
	}
	if outcome != want {
		msg := fmt.Sprintf("steps[%d] %s: got %s, want %s", i, step.Op, outcome, want)
		if opErr != nil {
			msg += fmt.Sprintf(" (%v)", opErr)
		}
		result.AddError(msg)
	}
	return nil
}

// roundtrip replaces the document with a serialized-and-reloaded copy that
// keeps the run's id sequence and clock.
func (h *Harness) roundtrip(i int, result *Result) {
	data, err := sheet.Serialize(h.doc)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d] roundtrip: serialize: %v", i, err))
		return
	}
	loaded, err := sheet.Deserialize(data, h.opts...)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d] roundtrip: deserialize: %v", i, err))
		return
	}
	if !sheet.Equal(h.doc, loaded) {
		result.AddError(fmt.Sprintf("steps[%d] roundtrip: reloaded document differs", i))
		return
	}
	h.doc = loaded
}

// check compares an entity against an expectation and returns one message
// per mismatch.
func (h *Harness) check(id sheet.SheetID, want *Expectation) []string {
	var msgs []string

	if want.Tombstoned != nil {
		if got := h.doc.IsTombstoned(id); got != *want.Tombstoned {
			msgs = append(msgs, fmt.Sprintf("tombstoned = %t, want %t", got, *want.Tombstoned))
		}
	}
	if want.Label == nil && want.Value == nil && want.Children == nil {
		return msgs
	}

	var (
		label    string
		value    sheet.Value
		children []sheet.SheetID
	)
	if id.IsRoot() {
		top, err := h.doc.ListChildren(sheet.Root)
		if err != nil {
			return append(msgs, err.Error())
		}
		for _, e := range top {
			children = append(children, e.ID)
		}
	} else {
		e, err := h.doc.Query(id)
		if err != nil {
			return append(msgs, err.Error())
		}
		label, value, children = e.Label, e.Value, e.Children
	}

	if want.Label != nil && label != *want.Label {
		msgs = append(msgs, fmt.Sprintf("label = %q, want %q", label, *want.Label))
	}
	if want.Value != nil && !value.Equal(want.Value.Value) {
		msgs = append(msgs, fmt.Sprintf("value = %s %q, want %s %q", value.Kind(), value, want.Value.Kind(), want.Value.Value))
	}
	if want.Children != nil {
		expected := make([]sheet.SheetID, 0, len(want.Children))
		for _, ref := range want.Children {
			expected = append(expected, h.refs[ref])
		}
		if !slices.Equal(children, expected) {
			msgs = append(msgs, fmt.Sprintf("children = %v, want %v", h.names(children), want.Children))
		}
	}
	return msgs
}

// names maps ids back to refs for readable messages.
func (h *Harness) names(ids []sheet.SheetID) []string {
	byID := make(map[sheet.SheetID]string, len(h.refs))
	for ref, id := range h.refs {
		byID[id] = ref
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if ref, ok := byID[id]; ok {
			out[i] = ref
		} else {
			out[i] = id.String()
		}
	}
	return out
}

// errorCode maps an operation error to its scenario code.
func errorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sheet.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, sheet.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, sheet.ErrTypeMismatch):
		return CodeTypeMismatch
	default:
		return "error"
	}
}
