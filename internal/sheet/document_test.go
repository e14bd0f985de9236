package sheet

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetmyself/internal/testutil"
)

// newTestDocument creates a document with deterministic ids and clock.
func newTestDocument(t *testing.T) (*Document, *testutil.DeterministicClock) {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	doc := New(WithIDGenerator(testutil.NewSequenceIDs()), WithClock(clock))
	return doc, clock
}

func TestNew_EmptyDocument(t *testing.T) {
	doc, _ := newTestDocument(t)

	assert.Equal(t, SheetID(testutil.SequenceID(1)), doc.ID())
	assert.Equal(t, CurrentSchemaVersion, doc.SchemaVersion())
	assert.True(t, testutil.DefaultBase.Add(time.Second).Equal(doc.CreatedAt()))
	assert.Equal(t, 0, doc.Len())
	assert.Empty(t, doc.Tombstones())

	children, err := doc.ListChildren(Root)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestNew_DefaultCapabilities(t *testing.T) {
	doc := New()

	assert.NotEqual(t, Root, doc.ID())
	id, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID(), id)
}

// Scenario: create "Name" = "Ava", update to "Mara", round-trip, query again.
func TestScenario_CreateUpdateRoundTrip(t *testing.T) {
	doc, _ := newTestDocument(t)

	a, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)

	got, err := doc.Query(a)
	require.NoError(t, err)
	assert.Equal(t, "Name", got.Label)
	text, ok := got.Value.AsText()
	require.True(t, ok)
	assert.Equal(t, "Ava", text)
	firstModified := got.ModifiedAt

	require.NoError(t, doc.UpdateValue(a, Text("Mara")))
	got, err = doc.Query(a)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(Text("Mara")))
	assert.True(t, got.ModifiedAt.After(firstModified), "modifiedAt must strictly increase")

	data, err := Serialize(doc)
	require.NoError(t, err)
	loaded, err := Deserialize(data)
	require.NoError(t, err)

	got, err = loaded.Query(a)
	require.NoError(t, err)
	assert.Equal(t, a, got.ID)
	assert.True(t, got.Value.Equal(Text("Mara")))
}

func TestCreateEntity_AppendsInOrder(t *testing.T) {
	doc, _ := newTestDocument(t)

	a, err := doc.CreateEntity(Root, "A", Text("a"))
	require.NoError(t, err)
	b, err := doc.CreateEntity(Root, "B", Number(2))
	require.NoError(t, err)
	c, err := doc.CreateEntity(Root, "C", Bool(true))
	require.NoError(t, err)

	children, err := doc.ListChildren(Root)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, []SheetID{a, b, c}, []SheetID{children[0].ID, children[1].ID, children[2].ID})
	assert.Equal(t, Root, children[0].Parent)
}

func TestCreateEntity_UnderList(t *testing.T) {
	doc, _ := newTestDocument(t)

	skills, err := doc.CreateEntity(Root, "Skills", List())
	require.NoError(t, err)
	before, err := doc.Query(skills)
	require.NoError(t, err)

	run, err := doc.CreateEntity(skills, "Running", Number(30))
	require.NoError(t, err)

	parent, err := doc.Query(skills)
	require.NoError(t, err)
	assert.Equal(t, []SheetID{run}, parent.Children)
	assert.True(t, parent.ModifiedAt.After(before.ModifiedAt), "adding a child modifies the list")

	child, err := doc.Query(run)
	require.NoError(t, err)
	assert.Equal(t, skills, child.Parent)
}

func TestCreateEntity_ParentNotFound(t *testing.T) {
	doc, _ := newTestDocument(t)

	_, err := doc.CreateEntity(SheetID(testutil.SequenceID(99)), "X", Text("x"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, doc.Len())
}

func TestCreateEntity_ParentTombstoned(t *testing.T) {
	doc, _ := newTestDocument(t)

	list, err := doc.CreateEntity(Root, "List", List())
	require.NoError(t, err)
	require.NoError(t, doc.DeleteEntity(list))

	_, err = doc.CreateEntity(list, "X", Text("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateEntity_ScalarParent(t *testing.T) {
	doc, _ := newTestDocument(t)

	name, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)

	_, err = doc.CreateEntity(name, "Nested", Text("x"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 1, doc.Len())
}

func TestCreateEntity_InvalidValue(t *testing.T) {
	doc, _ := newTestDocument(t)

	_, err := doc.CreateEntity(Root, "Zero", Value{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMutations_RejectInvalidUTF8(t *testing.T) {
	doc, _ := newTestDocument(t)
	id, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)
	before, err := Serialize(doc)
	require.NoError(t, err)

	_, err = doc.CreateEntity(Root, "bad\xff", Text("v"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = doc.CreateEntity(Root, "Notes", Text("v\xfe"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, doc.UpdateValue(id, Text("Ava\xfe")), ErrInvalidArgument)
	assert.ErrorIs(t, doc.Rename(id, "Na\xffme"), ErrInvalidArgument)

	after, err := Serialize(doc)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	back, err := Deserialize(after)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back))
}

func TestCreateEntity_NormalizesLabel(t *testing.T) {
	doc, _ := newTestDocument(t)

	// "e" followed by a combining acute accent composes to U+00E9.
	id, err := doc.CreateEntity(Root, "Cafe\u0301", Text("x"))
	require.NoError(t, err)

	got, err := doc.Query(id)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", got.Label)
}

func TestCreateEntity_RejectsRepeatedID(t *testing.T) {
	dup := testutil.SequenceID(7)
	doc := New(
		WithIDGenerator(testutil.NewFixedIDs(testutil.SequenceID(1), dup, dup)),
		WithClock(testutil.NewDeterministicClock()),
	)

	_, err := doc.CreateEntity(Root, "first", Text("a"))
	require.NoError(t, err)

	_, err = doc.CreateEntity(Root, "second", Text("b"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 1, doc.Len(), "failed create must not mutate")
}

func TestCreateEntity_RejectsRetiredID(t *testing.T) {
	dup := testutil.SequenceID(7)
	doc := New(
		WithIDGenerator(testutil.NewFixedIDs(testutil.SequenceID(1), dup, dup)),
		WithClock(testutil.NewDeterministicClock()),
	)

	id, err := doc.CreateEntity(Root, "first", Text("a"))
	require.NoError(t, err)
	require.NoError(t, doc.DeleteEntity(id))

	_, err = doc.CreateEntity(Root, "second", Text("b"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, doc.Len())
}

func TestCreateEntity_RejectsNilID(t *testing.T) {
	doc := New(
		WithIDGenerator(testutil.NewFixedIDs(testutil.SequenceID(1), uuid.Nil)),
		WithClock(testutil.NewDeterministicClock()),
	)

	_, err := doc.CreateEntity(Root, "first", Text("a"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateTypedEntity_InitialMustMatch(t *testing.T) {
	doc, _ := newTestDocument(t)

	_, err := doc.CreateTypedEntity(Root, "Age", KindNumber, Text("old"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = doc.CreateTypedEntity(Root, "Age", Kind("float"), Number(1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateValue_TypeMismatch(t *testing.T) {
	doc, _ := newTestDocument(t)

	age, err := doc.CreateTypedEntity(Root, "Age", KindNumber, Number(30))
	require.NoError(t, err)
	before, err := doc.Query(age)
	require.NoError(t, err)

	err = doc.UpdateValue(age, Text("thirty"))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	after, err := doc.Query(age)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed update must not mutate")

	require.NoError(t, doc.UpdateValue(age, Number(31)))
}

func TestUpdateValue_AnyAcceptsEveryKind(t *testing.T) {
	doc, _ := newTestDocument(t)

	id, err := doc.CreateEntity(Root, "Free", Text("a"))
	require.NoError(t, err)

	require.NoError(t, doc.UpdateValue(id, Number(1)))
	require.NoError(t, doc.UpdateValue(id, Bool(false)))
	require.NoError(t, doc.UpdateValue(id, List()))
	require.NoError(t, doc.UpdateValue(id, Text("back")))
}

func TestUpdateValue_ListWithChildrenStaysList(t *testing.T) {
	doc, _ := newTestDocument(t)

	list, err := doc.CreateEntity(Root, "List", List())
	require.NoError(t, err)
	_, err = doc.CreateEntity(list, "Item", Text("x"))
	require.NoError(t, err)

	err = doc.UpdateValue(list, Text("flat"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUpdateValue_NotFound(t *testing.T) {
	doc, _ := newTestDocument(t)

	err := doc.UpdateValue(SheetID(testutil.SequenceID(42)), Text("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := doc.CreateEntity(Root, "Gone", Text("x"))
	require.NoError(t, err)
	require.NoError(t, doc.DeleteEntity(id))
	assert.ErrorIs(t, doc.UpdateValue(id, Text("y")), ErrNotFound)
}

func TestUpdateValue_RejectsNonFinite(t *testing.T) {
	doc, _ := newTestDocument(t)

	id, err := doc.CreateEntity(Root, "N", Number(1))
	require.NoError(t, err)

	var zero float64
	err = doc.UpdateValue(id, Number(1/zero))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestModifiedAt_NeverBeforeCreatedAt(t *testing.T) {
	// A clock running backwards must not produce modifiedAt < createdAt.
	clock := testutil.NewDeterministicClockAt(testutil.DefaultBase, -time.Minute)
	doc := New(WithIDGenerator(testutil.NewSequenceIDs()), WithClock(clock))

	id, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)
	require.NoError(t, doc.UpdateValue(id, Text("Mara")))
	require.NoError(t, doc.Rename(id, "Full Name"))

	got, err := doc.Query(id)
	require.NoError(t, err)
	assert.False(t, got.ModifiedAt.Before(got.CreatedAt))
	assert.False(t, got.CreatedAt.Before(doc.CreatedAt()))
}

func TestRename(t *testing.T) {
	doc, _ := newTestDocument(t)

	id, err := doc.CreateEntity(Root, "Nmae", Text("Ava"))
	require.NoError(t, err)
	require.NoError(t, doc.Rename(id, "Name"))

	got, err := doc.Query(id)
	require.NoError(t, err)
	assert.Equal(t, "Name", got.Label)
	assert.True(t, got.ModifiedAt.After(got.CreatedAt))

	assert.ErrorIs(t, doc.Rename(SheetID(testutil.SequenceID(50)), "x"), ErrNotFound)
}

func TestDeleteEntity_TombstonesDescendants(t *testing.T) {
	doc, _ := newTestDocument(t)

	skills, err := doc.CreateEntity(Root, "Skills", List())
	require.NoError(t, err)
	running, err := doc.CreateEntity(skills, "Running", List())
	require.NoError(t, err)
	session, err := doc.CreateEntity(running, "Session", Number(30))
	require.NoError(t, err)
	keep, err := doc.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)

	require.NoError(t, doc.DeleteEntity(skills))

	for _, id := range []SheetID{skills, running, session} {
		_, err := doc.Query(id)
		assert.ErrorIs(t, err, ErrNotFound, "descendant %s must be gone", id)
		assert.True(t, doc.IsTombstoned(id))
	}
	assert.ElementsMatch(t, []SheetID{skills, running, session}, doc.Tombstones())

	children, err := doc.ListChildren(Root)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, keep, children[0].ID)

	assert.ErrorIs(t, doc.DeleteEntity(skills), ErrNotFound)
}

func TestDeleteEntity_ModifiesParentList(t *testing.T) {
	doc, _ := newTestDocument(t)

	list, err := doc.CreateEntity(Root, "List", List())
	require.NoError(t, err)
	item, err := doc.CreateEntity(list, "Item", Text("x"))
	require.NoError(t, err)
	before, err := doc.Query(list)
	require.NoError(t, err)

	require.NoError(t, doc.DeleteEntity(item))

	after, err := doc.Query(list)
	require.NoError(t, err)
	assert.Empty(t, after.Children)
	assert.True(t, after.ModifiedAt.After(before.ModifiedAt))
}

func TestReorder(t *testing.T) {
	doc, _ := newTestDocument(t)

	a, _ := doc.CreateEntity(Root, "A", Text("a"))
	b, _ := doc.CreateEntity(Root, "B", Text("b"))
	c, _ := doc.CreateEntity(Root, "C", Text("c"))

	require.NoError(t, doc.Reorder(Root, []SheetID{c, a, b}))

	children, err := doc.ListChildren(Root)
	require.NoError(t, err)
	assert.Equal(t, []SheetID{c, a, b}, []SheetID{children[0].ID, children[1].ID, children[2].ID})

	// ids survive reordering
	got, err := doc.Query(a)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Label)
}

func TestReorder_RejectsNonPermutation(t *testing.T) {
	doc, _ := newTestDocument(t)

	a, _ := doc.CreateEntity(Root, "A", Text("a"))
	b, _ := doc.CreateEntity(Root, "B", Text("b"))
	list, _ := doc.CreateEntity(Root, "L", List())
	foreign, _ := doc.CreateEntity(list, "F", Text("f"))

	tests := []struct {
		name  string
		order []SheetID
	}{
		{"duplicate", []SheetID{a, a, b}},
		{"missing", []SheetID{a, b}},
		{"foreign", []SheetID{a, b, foreign}},
		{"extra", []SheetID{a, b, list, foreign}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.Reorder(Root, tt.order)
			assert.ErrorIs(t, err, ErrInvalidArgument)

			children, err := doc.ListChildren(Root)
			require.NoError(t, err)
			assert.Equal(t, []SheetID{a, b, list}, []SheetID{children[0].ID, children[1].ID, children[2].ID})
		})
	}
}

func TestReorder_NestedAndMissingParent(t *testing.T) {
	doc, _ := newTestDocument(t)

	list, _ := doc.CreateEntity(Root, "L", List())
	x, _ := doc.CreateEntity(list, "X", Text("x"))
	y, _ := doc.CreateEntity(list, "Y", Text("y"))

	require.NoError(t, doc.Reorder(list, []SheetID{y, x}))
	got, err := doc.Query(list)
	require.NoError(t, err)
	assert.Equal(t, []SheetID{y, x}, got.Children)

	assert.ErrorIs(t, doc.Reorder(SheetID(testutil.SequenceID(77)), nil), ErrNotFound)
}

func TestQuery_ReturnsCopy(t *testing.T) {
	doc, _ := newTestDocument(t)

	list, _ := doc.CreateEntity(Root, "L", List())
	x, _ := doc.CreateEntity(list, "X", Text("x"))

	got, err := doc.Query(list)
	require.NoError(t, err)
	got.Children[0] = Root
	got.Label = "changed"

	again, err := doc.Query(list)
	require.NoError(t, err)
	assert.Equal(t, []SheetID{x}, again.Children)
	assert.Equal(t, "L", again.Label)
}

func TestWalk_DepthFirstDisplayOrder(t *testing.T) {
	doc, _ := newTestDocument(t)

	name, _ := doc.CreateEntity(Root, "Name", Text("Ava"))
	skills, _ := doc.CreateEntity(Root, "Skills", List())
	run, _ := doc.CreateEntity(skills, "Running", Number(1))
	swim, _ := doc.CreateEntity(skills, "Swimming", Number(2))

	type visit struct {
		depth int
		id    SheetID
	}
	var visits []visit
	err := doc.Walk(func(depth int, e Entity) error {
		visits = append(visits, visit{depth, e.ID})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []visit{{0, name}, {0, skills}, {1, run}, {1, swim}}, visits)
}

func TestIDsUniqueAcrossLifetime(t *testing.T) {
	doc := New()
	seen := map[SheetID]bool{doc.ID(): true}

	list, err := doc.CreateEntity(Root, "L", List())
	require.NoError(t, err)
	seen[list] = true

	for i := 0; i < 200; i++ {
		id, err := doc.CreateEntity(list, "item", Number(float64(i)))
		require.NoError(t, err)
		require.False(t, seen[id], "id %s handed out twice", id)
		seen[id] = true
		if i%3 == 0 {
			require.NoError(t, doc.DeleteEntity(id))
		}
	}
	assert.Len(t, doc.Tombstones(), 67)
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	doc := New()
	list, err := doc.CreateEntity(Root, "L", List())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id, err := doc.CreateEntity(list, "item", Text("x"))
				if err != nil {
					t.Error(err)
					return
				}
				if err := doc.UpdateValue(id, Text("y")); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := doc.Query(list)
	require.NoError(t, err)
	assert.Len(t, got.Children, 200)
}

func TestEqual(t *testing.T) {
	a, _ := newTestDocument(t)
	b, _ := newTestDocument(t)

	assert.True(t, Equal(a, b))
	assert.True(t, Equal(a, a))
	assert.False(t, Equal(a, nil))

	_, err := a.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)
	assert.False(t, Equal(a, b))

	_, err = b.CreateEntity(Root, "Name", Text("Ava"))
	require.NoError(t, err)
	assert.True(t, Equal(a, b))
}

func TestSameInstant_ComparesOffset(t *testing.T) {
	utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	plus2 := utc.In(time.FixedZone("X", 2*60*60))
	named := utc.In(time.FixedZone("Y", 2*60*60))

	assert.False(t, sameInstant(utc, plus2))
	assert.True(t, sameInstant(plus2, named))
}
