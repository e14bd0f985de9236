package sheet

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Entity is a read-only snapshot of one sheet entity.
// Snapshots are copies; changing one never affects the document.
type Entity struct {
	ID         SheetID
	Parent     SheetID
	Label      string
	Declared   Kind
	Value      Value
	CreatedAt  time.Time
	ModifiedAt time.Time
	Children   []SheetID
}

// node is the table entry behind an Entity.
type node struct {
	id         SheetID
	parent     SheetID
	label      string
	declared   Kind
	value      Value
	createdAt  time.Time
	modifiedAt time.Time
	children   []SheetID
}

func (n *node) snapshot() Entity {
	return Entity{
		ID:         n.id,
		Parent:     n.parent,
		Label:      n.label,
		Declared:   n.declared,
		Value:      n.value,
		CreatedAt:  n.createdAt,
		ModifiedAt: n.modifiedAt,
		Children:   slices.Clone(n.children),
	}
}

// touch bumps modifiedAt without ever moving it backwards.
func (n *node) touch(now time.Time) {
	if now.After(n.modifiedAt) {
		n.modifiedAt = now
	}
}

// Document is the in-memory source of truth for one sheet.
type Document struct {
	mu sync.RWMutex

	id            SheetID
	createdAt     time.Time
	schemaVersion int

	order      []SheetID
	nodes      map[SheetID]*node
	tombstones map[SheetID]struct{}

	ids   IDGenerator
	clock Clock
}

// Option configures a Document.
type Option func(*Document)

// WithIDGenerator injects the identity service.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Document) {
		d.ids = g
	}
}

// WithClock injects the timestamp service.
func WithClock(c Clock) Option {
	return func(d *Document) {
		d.clock = c
	}
}

func newDocument(opts []Option) *Document {
	d := &Document{
		schemaVersion: CurrentSchemaVersion,
		nodes:         make(map[SheetID]*node),
		tombstones:    make(map[SheetID]struct{}),
		ids:           UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = NewSystemClock(nil)
	}
	return d
}

// New creates an empty document with a fresh id.
func New(opts ...Option) *Document {
	d := newDocument(opts)
	d.id = SheetID(d.ids.NewID())
	d.createdAt = d.clock.Now()
	return d
}

// ID returns the document id.
func (d *Document) ID() SheetID {
	return d.id
}

// CreatedAt returns when the document lineage was created.
func (d *Document) CreatedAt() time.Time {
	return d.createdAt
}

// SchemaVersion returns the schema version the document will be saved with.
func (d *Document) SchemaVersion() int {
	return d.schemaVersion
}

// Len returns the number of live entities.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// Tombstones returns the retired ids in byte order.
func (d *Document) Tombstones() []SheetID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedTombstones()
}

func (d *Document) sortedTombstones() []SheetID {
	out := make([]SheetID, 0, len(d.tombstones))
	for id := range d.tombstones {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b SheetID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// IsTombstoned reports whether id belonged to a deleted entity.
func (d *Document) IsTombstoned(id SheetID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tombstones[id]
	return ok
}

// lookup resolves a live entity.
func (d *Document) lookup(id SheetID) (*node, error) {
	n, ok := d.nodes[id]
	if !ok {
		if _, dead := d.tombstones[id]; dead {
			return nil, fmt.Errorf("%w: entity %s was deleted", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return n, nil
}

// childrenOf returns a pointer to the ordered child list of parent.
func (d *Document) childrenOf(parent SheetID) (*[]SheetID, *node, error) {
	if parent.IsRoot() {
		return &d.order, nil, nil
	}
	n, err := d.lookup(parent)
	if err != nil {
		return nil, nil, err
	}
	return &n.children, n, nil
}

// now reads the clock, never returning an instant before the document's creation.
func (d *Document) now() time.Time {
	t := d.clock.Now()
	if t.Before(d.createdAt) {
		return d.createdAt
	}
	return t
}

// CreateEntity appends a new entity under parent (Root for top level) and
// returns its id. The entity accepts values of any kind.
func (d *Document) CreateEntity(parent SheetID, label string, initial Value) (SheetID, error) {
	return d.CreateTypedEntity(parent, label, KindAny, initial)
}

// CreateTypedEntity is CreateEntity with a declared field type. Later updates
// with a value of another kind fail with ErrTypeMismatch.
//
// A non-root parent must hold a list value. Labels are stored NFC-normalized.
func (d *Document) CreateTypedEntity(parent SheetID, label string, declared Kind, initial Value) (SheetID, error) {
	if err := checkLabel(label); err != nil {
		return Root, fmt.Errorf("create entity: %w", err)
	}
	if err := initial.validate(); err != nil {
		return Root, fmt.Errorf("create entity: %w", err)
	}
	if _, err := ParseKind(string(declared)); err != nil {
		return Root, fmt.Errorf("create entity: %w", err)
	}
	if !declared.Accepts(initial.Kind()) {
		return Root, fmt.Errorf("create entity: %w: field declared %s, got %s", ErrTypeMismatch, declared, initial.Kind())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	siblings, parentNode, err := d.childrenOf(parent)
	if err != nil {
		return Root, fmt.Errorf("create entity: parent: %w", err)
	}
	if parentNode != nil && parentNode.value.Kind() != KindList {
		return Root, fmt.Errorf("create entity: %w: parent %s holds a %s value, not a list", ErrTypeMismatch, parent, parentNode.value.Kind())
	}

	id := SheetID(d.ids.NewID())
	if err := d.checkFresh(id); err != nil {
		return Root, fmt.Errorf("create entity: %w", err)
	}

	now := d.now()
	d.nodes[id] = &node{
		id:         id,
		parent:     parent,
		label:      normalizeLabel(label),
		declared:   declared,
		value:      initial,
		createdAt:  now,
		modifiedAt: now,
	}
	*siblings = append(*siblings, id)
	if parentNode != nil {
		parentNode.touch(now)
	}
	return id, nil
}

// checkFresh refuses ids that are in use, retired or reserved.
func (d *Document) checkFresh(id SheetID) error {
	if id.IsRoot() || id == d.id {
		return fmt.Errorf("%w: identity service returned reserved id %s", ErrInvalidArgument, uuid.UUID(id))
	}
	if _, ok := d.nodes[id]; ok {
		return fmt.Errorf("%w: identity service returned live id %s", ErrInvalidArgument, id)
	}
	if _, ok := d.tombstones[id]; ok {
		return fmt.Errorf("%w: identity service returned retired id %s", ErrInvalidArgument, id)
	}
	return nil
}

// UpdateValue replaces an entity's value and bumps its modification time.
//
// Fails with ErrTypeMismatch when the value's kind is not accepted by the
// declared type, or when a list that still has children would become a scalar.
func (d *Document) UpdateValue(id SheetID, v Value) error {
	if err := v.validate(); err != nil {
		return fmt.Errorf("update value: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.lookup(id)
	if err != nil {
		return fmt.Errorf("update value: %w", err)
	}
	if !n.declared.Accepts(v.Kind()) {
		return fmt.Errorf("update value: %w: field %q declared %s, got %s", ErrTypeMismatch, n.label, n.declared, v.Kind())
	}
	if n.value.Kind() == KindList && v.Kind() != KindList && len(n.children) > 0 {
		return fmt.Errorf("update value: %w: list %q still has %d children", ErrTypeMismatch, n.label, len(n.children))
	}

	n.value = v
	n.touch(d.now())
	return nil
}

// Rename changes an entity's label and bumps its modification time.
func (d *Document) Rename(id SheetID, label string) error {
	if err := checkLabel(label); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.lookup(id)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	n.label = normalizeLabel(label)
	n.touch(d.now())
	return nil
}

// DeleteEntity tombstones an entity and, transitively, all its descendants.
func (d *Document) DeleteEntity(id SheetID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.lookup(id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	siblings, parentNode, err := d.childrenOf(n.parent)
	if err != nil {
		// A live entity always has a live parent.
		return fmt.Errorf("delete entity: corrupt parent link: %w", err)
	}

	*siblings = slices.DeleteFunc(*siblings, func(c SheetID) bool { return c == id })

	stack := []SheetID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cn, ok := d.nodes[cur]; ok {
			stack = append(stack, cn.children...)
			delete(d.nodes, cur)
		}
		d.tombstones[cur] = struct{}{}
	}

	if parentNode != nil {
		parentNode.touch(d.now())
	}
	return nil
}

// Reorder replaces the order of parent's children. order must be an exact
// permutation of the current live children; anything else fails with
// ErrInvalidArgument and leaves the order unchanged.
func (d *Document) Reorder(parent SheetID, order []SheetID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	siblings, parentNode, err := d.childrenOf(parent)
	if err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	if len(order) != len(*siblings) {
		return fmt.Errorf("reorder: %w: got %d ids, parent has %d children", ErrInvalidArgument, len(order), len(*siblings))
	}

	current := make(map[SheetID]bool, len(*siblings))
	for _, c := range *siblings {
		current[c] = false
	}
	for _, c := range order {
		seen, ok := current[c]
		if !ok {
			return fmt.Errorf("reorder: %w: %s is not a child of %s", ErrInvalidArgument, c, parent)
		}
		if seen {
			return fmt.Errorf("reorder: %w: %s listed twice", ErrInvalidArgument, c)
		}
		current[c] = true
	}

	*siblings = slices.Clone(order)
	if parentNode != nil {
		parentNode.touch(d.now())
	}
	return nil
}

// Query returns a snapshot of a live entity.
func (d *Document) Query(id SheetID) (Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, err := d.lookup(id)
	if err != nil {
		return Entity{}, err
	}
	return n.snapshot(), nil
}

// ListChildren returns snapshots of parent's live children in display order.
func (d *Document) ListChildren(parent SheetID) ([]Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	siblings, _, err := d.childrenOf(parent)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(*siblings))
	for _, c := range *siblings {
		out = append(out, d.nodes[c].snapshot())
	}
	return out, nil
}

// Walk visits every live entity depth-first in display order.
// depth is 0 for top-level entities. Returning an error stops the walk.
func (d *Document) Walk(fn func(depth int, e Entity) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.walk(d.order, 0, fn)
}

func (d *Document) walk(ids []SheetID, depth int, fn func(int, Entity) error) error {
	for _, id := range ids {
		n := d.nodes[id]
		if err := fn(depth, n.snapshot()); err != nil {
			return err
		}
		if err := d.walk(n.children, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two documents are structurally equal: same ids,
// labels, declared types, values, timestamps (instant and offset), order
// and tombstone set.
func Equal(a, b *Document) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	b.mu.RLock()
	defer b.mu.RUnlock()

	if a.id != b.id || a.schemaVersion != b.schemaVersion || !sameInstant(a.createdAt, b.createdAt) {
		return false
	}
	if !slices.Equal(a.order, b.order) || len(a.nodes) != len(b.nodes) || len(a.tombstones) != len(b.tombstones) {
		return false
	}
	for id := range a.tombstones {
		if _, ok := b.tombstones[id]; !ok {
			return false
		}
	}
	for id, an := range a.nodes {
		bn, ok := b.nodes[id]
		if !ok {
			return false
		}
		if an.parent != bn.parent || an.label != bn.label || an.declared != bn.declared ||
			!an.value.Equal(bn.value) || !slices.Equal(an.children, bn.children) ||
			!sameInstant(an.createdAt, bn.createdAt) || !sameInstant(an.modifiedAt, bn.modifiedAt) {
			return false
		}
	}
	return true
}

// sameInstant compares instant and UTC offset; location names may differ.
func sameInstant(a, b time.Time) bool {
	_, ao := a.Zone()
	_, bo := b.Zone()
	return a.Equal(b) && ao == bo
}

// checkLabel rejects labels that cannot be stored unchanged.
func checkLabel(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: label is not valid UTF-8: %q", ErrInvalidArgument, s)
	}
	return nil
}

func normalizeLabel(s string) string {
	return norm.NFC.String(s)
}
