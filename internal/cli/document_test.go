package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/testutil"
)

func TestInit_CreatesDefaultSheet(t *testing.T) {
	path := newSheetPath(t)

	out, _, err := execute(t, "", "--data", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized sheet")
	assert.Contains(t, out, "(2 fields)")

	doc := loadSheet(t, path)
	top, err := doc.ListChildren(sheet.Root)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Player Name", top[0].Label)
	assert.Equal(t, sheet.KindText, top[0].Declared)
	assert.Equal(t, sheet.Text("New Player Name"), top[0].Value)
	assert.Equal(t, "Skills", top[1].Label)
	assert.Equal(t, sheet.KindList, top[1].Declared)
}

func TestInit_RefusesExistingSheet(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	before := loadSheet(t, path)

	out, _, err := execute(t, "", "--data", path, "init")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeExists+"]")
	assert.Contains(t, out, "--force")
	assert.Equal(t, before.ID(), loadSheet(t, path).ID())

	_, _, err = execute(t, "", "--data", path, "init", "--force")
	require.NoError(t, err)
	assert.NotEqual(t, before.ID(), loadSheet(t, path).ID())
}

func TestInit_DamagedSheetNeedsForce(t *testing.T) {
	path := newSheetPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion": 9}`), 0644))

	out, _, err := execute(t, "", "--data", path, "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnsupportedVersion)

	_, _, err = execute(t, "", "--data", path, "init", "--force")
	require.NoError(t, err)
	loadSheet(t, path)
}

func TestInit_FromTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.json")
	tmpl := filepath.Join(dir, "tracker.cue")
	require.NoError(t, os.WriteFile(tmpl, []byte(`field: {
	Level: {type: "number", default: 3}
	Journal: {type: "list", field: {Day1: {type: "text", default: "started"}}}
}
`), 0644))

	out, _, err := execute(t, "", "--data", path, "--format", "json", "init", "--template", tmpl)
	require.NoError(t, err)

	var result InitResult
	decodeData(t, out, &result)
	assert.Equal(t, []string{"Level", "Journal"}, result.Fields)
	assert.Equal(t, path, result.Path)
	assert.Equal(t, "file", result.Backend)

	doc := loadSheet(t, path)
	top, err := doc.ListChildren(sheet.Root)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, sheet.Number(3), top[0].Value)
	assert.Equal(t, []string{"Day1"}, labels(t, doc, top[1].ID))
}

func TestInit_BadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.json")
	tmpl := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(tmpl, []byte(`field: {When: {type: "date"}}`), 0644))

	out, _, err := execute(t, "", "--data", path, "init", "--template", tmpl)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeTemplate)
	assert.Contains(t, out, "unknown type")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing is saved")
}

func TestShow_NoSheet(t *testing.T) {
	out, _, err := execute(t, "", "--data", newSheetPath(t), "show")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
	assert.Contains(t, out, "sheetmyself init")
}

func TestShow_DamagedSheet(t *testing.T) {
	path := newSheetPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion": 2`), 0644))

	out, _, err := execute(t, "", "--data", path, "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeParse)
}

func TestShow_Text(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	_, _, err := execute(t, "", "--data", path, "add", "Skills", "Running", "--type", "list")
	require.NoError(t, err)

	out, _, err := execute(t, "", "--data", path, "show")
	require.NoError(t, err)

	doc := loadSheet(t, path)
	top, err := doc.ListChildren(sheet.Root)
	require.NoError(t, err)
	skills, err := doc.ListChildren(top[1].ID)
	require.NoError(t, err)

	want := "Player Name = New Player Name  (" + top[0].ID.String() + ")\n" +
		"Skills/  (" + top[1].ID.String() + ")\n" +
		"  Running/  (" + skills[0].ID.String() + ")\n"
	assert.Equal(t, want, out)
}

func TestShow_Subtree(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	_, _, err := execute(t, "", "--data", path, "add", "Skills", "Running", "--type", "list")
	require.NoError(t, err)

	out, _, err := execute(t, "", "--data", path, "show", "Skills/Running")
	require.NoError(t, err)
	assert.Contains(t, out, "Running/")
	assert.NotContains(t, out, "Player Name")
}

func TestShow_EmptySheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.json")
	doc := sheet.New()
	data, err := sheet.Serialize(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, _, err := execute(t, "", "--data", path, "show")
	require.NoError(t, err)
	assert.Equal(t, "(empty sheet)\n", out)
}

func TestShow_JSON(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)

	out, _, err := execute(t, "", "--data", path, "--format", "json", "show")
	require.NoError(t, err)

	var result ShowResult
	decodeData(t, out, &result)
	assert.Equal(t, loadSheet(t, path).ID().String(), result.DocumentID)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "Player Name", result.Entities[0].Label)
	assert.Equal(t, sheet.KindText, result.Entities[0].Type)
	assert.Equal(t, "New Player Name", result.Entities[0].Value)
	assert.Equal(t, sheet.KindList, result.Entities[1].Kind)
	assert.Nil(t, result.Entities[1].Value)
}

func TestEditingCommands_RoundTrip(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	run := func(args ...string) string {
		t.Helper()
		out, _, err := execute(t, "", append([]string{"--data", path}, args...)...)
		require.NoError(t, err, out)
		return out
	}

	out := run("add", "root", "Level", "3", "--type", "number")
	assert.Contains(t, out, "added Level = 3")

	out = run("set", "Level", "4")
	assert.Contains(t, out, "set Level = 4")

	out = run("rename", "Level", "Rank")
	assert.Contains(t, out, "renamed Rank")

	doc := loadSheet(t, path)
	assert.Equal(t, []string{"Player Name", "Skills", "Rank"}, labels(t, doc, sheet.Root))
	rank, err := resolveRef(doc, "Rank")
	require.NoError(t, err)
	e, err := doc.Query(rank)
	require.NoError(t, err)
	assert.Equal(t, sheet.KindNumber, e.Declared)
	assert.Equal(t, sheet.Number(4), e.Value)

	out = run("rm", rank.String())
	assert.Contains(t, out, "removed "+rank.String())

	doc = loadSheet(t, path)
	assert.Equal(t, []string{"Player Name", "Skills"}, labels(t, doc, sheet.Root))
	assert.True(t, doc.IsTombstoned(rank))
}

func TestAdd_AnyFieldKinds(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)

	_, _, err := execute(t, "", "--data", path, "add", "root", "Active", "true", "--kind", "bool")
	require.NoError(t, err)
	_, _, err = execute(t, "", "--data", path, "add", "root", "Notes")
	require.NoError(t, err)

	doc := loadSheet(t, path)
	active, err := resolveRef(doc, "Active")
	require.NoError(t, err)
	e, err := doc.Query(active)
	require.NoError(t, err)
	assert.Equal(t, sheet.KindAny, e.Declared)
	assert.Equal(t, sheet.Bool(true), e.Value)

	notes, err := resolveRef(doc, "Notes")
	require.NoError(t, err)
	e, err = doc.Query(notes)
	require.NoError(t, err)
	assert.Equal(t, sheet.Text(""), e.Value)

	// An "any" field keeps its current kind unless told otherwise.
	_, _, err = execute(t, "", "--data", path, "set", "Active", "false")
	require.NoError(t, err)
	_, _, err = execute(t, "", "--data", path, "set", "Active", "7", "--kind", "number")
	require.NoError(t, err)
	e, err = loadSheet(t, path).Query(active)
	require.NoError(t, err)
	assert.Equal(t, sheet.Number(7), e.Value)
}

func TestAdd_Rejections(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown type", []string{"add", "root", "X", "1", "--type", "date"}, ErrCodeInvalidArgument},
		{"number without value", []string{"add", "root", "X", "--type", "number"}, ErrCodeInvalidArgument},
		{"bad number", []string{"add", "root", "X", "abc", "--type", "number"}, ErrCodeInvalidArgument},
		{"value kind mismatch", []string{"add", "root", "X", "abc", "--type", "number", "--kind", "text"}, ErrCodeTypeMismatch},
		{"scalar parent", []string{"add", "Player Name", "X", "1"}, ErrCodeTypeMismatch},
		{"unknown parent", []string{"add", "Nope", "X", "1"}, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "", append([]string{"--data", path}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}

	assert.Equal(t, []string{"Player Name", "Skills"}, labels(t, loadSheet(t, path), sheet.Root))
}

func TestSet_Rejections(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	_, _, err := execute(t, "", "--data", path, "add", "root", "Level", "3", "--type", "number")
	require.NoError(t, err)

	out, _, err := execute(t, "", "--data", path, "set", "Level", "abc")
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeInvalidArgument)

	out, _, err = execute(t, "", "--data", path, "set", "Level", "true", "--kind", "bool")
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeTypeMismatch)

	doc := loadSheet(t, path)
	level, err := resolveRef(doc, "Level")
	require.NoError(t, err)
	e, err := doc.Query(level)
	require.NoError(t, err)
	assert.Equal(t, sheet.Number(3), e.Value)
}

func TestRemove_UnknownRef(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)

	out, _, err := execute(t, "", "--data", path, "rm", "Nope")
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestReorder(t *testing.T) {
	path := newSheetPath(t)
	initSheet(t, path)
	for _, label := range []string{"A", "B"} {
		_, _, err := execute(t, "", "--data", path, "add", "root", label, "x")
		require.NoError(t, err)
	}

	_, _, err := execute(t, "", "--data", path, "reorder", "root", "B", "Skills", "A", "Player Name")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "Skills", "A", "Player Name"}, labels(t, loadSheet(t, path), sheet.Root))

	out, _, err := execute(t, "", "--data", path, "reorder", "root", "A", "B")
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeInvalidArgument)
	assert.Equal(t, []string{"B", "Skills", "A", "Player Name"}, labels(t, loadSheet(t, path), sheet.Root))
}

func TestResolveRef(t *testing.T) {
	doc := sheet.New(sheet.WithIDGenerator(testutil.NewSequenceIDs()), sheet.WithClock(testutil.NewDeterministicClock()))
	skills, err := doc.CreateTypedEntity(sheet.Root, "Skills", sheet.KindList, sheet.List())
	require.NoError(t, err)
	running, err := doc.CreateTypedEntity(skills, "Running", sheet.KindList, sheet.List())
	require.NoError(t, err)
	_, err = doc.CreateTypedEntity(skills, "Running", sheet.KindList, sheet.List())
	require.NoError(t, err)
	cafe, err := doc.CreateEntity(sheet.Root, "Café", sheet.Text("x"))
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want sheet.SheetID
	}{
		{"", sheet.Root},
		{"root", sheet.Root},
		{"/", sheet.Root},
		{"Skills", skills},
		{"/Skills/Running/", running},
		{"Skills/Running", running},
		{running.String(), running},
		{"Café", cafe},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := resolveRef(doc, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = resolveRef(doc, "Skills/Piano")
	assert.ErrorIs(t, err, sheet.ErrNotFound)
	_, err = resolveRef(doc, "Café/x")
	assert.Error(t, err, "scalar entities have no children")
}
