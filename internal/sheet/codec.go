package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is the schema version written by Serialize.
//
// Schema history:
// 1 - Untagged scalar values; list children embedded in the value array; no tombstones
// 2 - Tagged values, declared field types, separate children, tombstone list
const CurrentSchemaVersion = 2

// TimeFormat is the on-disk timestamp layout. It keeps the UTC offset.
const TimeFormat = time.RFC3339Nano

// Wire types. Pointers mark required fields so a missing field can be told
// apart from a zero value; field order fixes the output order.
type wireDocument struct {
	DocumentID    *string       `json:"documentId"`
	SchemaVersion *int          `json:"schemaVersion"`
	CreatedAt     *string       `json:"createdAt"`
	Entities      *[]wireEntity `json:"entities"`
	Tombstones    *[]string     `json:"tombstones"`
}

type wireEntity struct {
	ID         *string       `json:"id"`
	Label      *string       `json:"label"`
	Type       *Kind         `json:"type"`
	Value      *wireValue    `json:"value"`
	CreatedAt  *string       `json:"createdAt"`
	ModifiedAt *string       `json:"modifiedAt"`
	Children   *[]wireEntity `json:"children"`
}

type wireValue struct {
	Kind   *Kind    `json:"kind"`
	Text   *string  `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

// Serialize renders the document as indented JSON with a trailing newline.
// Output is deterministic: equal documents serialize to identical bytes.
func Serialize(d *Document) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entities := d.encodeEntities(d.order)
	tombstones := make([]string, 0, len(d.tombstones))
	for _, id := range d.sortedTombstones() {
		tombstones = append(tombstones, id.String())
	}

	doc := wireDocument{
		DocumentID:    ptr(d.id.String()),
		SchemaVersion: ptr(d.schemaVersion),
		CreatedAt:     ptr(d.createdAt.Format(TimeFormat)),
		Entities:      &entities,
		Tombstones:    &tombstones,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) encodeEntities(ids []SheetID) []wireEntity {
	out := make([]wireEntity, 0, len(ids))
	for _, id := range ids {
		n := d.nodes[id]
		we := wireEntity{
			ID:         ptr(n.id.String()),
			Label:      ptr(n.label),
			Type:       ptr(n.declared),
			Value:      encodeValue(n.value),
			CreatedAt:  ptr(n.createdAt.Format(TimeFormat)),
			ModifiedAt: ptr(n.modifiedAt.Format(TimeFormat)),
			Children:   ptr(d.encodeEntities(n.children)),
		}
		out = append(out, we)
	}
	return out
}

func encodeValue(v Value) *wireValue {
	wv := &wireValue{Kind: ptr(v.kind)}
	switch v.kind {
	case KindText:
		wv.Text = ptr(v.text)
	case KindNumber:
		wv.Number = ptr(v.number)
	case KindBool:
		wv.Bool = ptr(v.flag)
	}
	return wv
}

// Deserialize parses bytes produced by Serialize (any supported schema
// version) into a new Document. opts configure the identity and time
// services used by later mutations.
//
// On failure no Document is returned. Errors are *ParseError or
// *UnsupportedVersionError.
func Deserialize(data []byte, opts ...Option) (*Document, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}

	version, err := rawVersion(raw)
	if err != nil {
		return nil, err
	}
	if version > CurrentSchemaVersion {
		return nil, &UnsupportedVersionError{Found: version, Supported: CurrentSchemaVersion}
	}
	if version < CurrentSchemaVersion {
		if err := migrate(raw, version); err != nil {
			return nil, err
		}
		// Re-encode so the strict decoder sees the upgraded shape.
		data, err = json.Marshal(raw)
		if err != nil {
			return nil, &ParseError{Message: "re-encode migrated document", Err: err}
		}
	}

	var wd wireDocument
	if err := decodeStrict(data, &wd); err != nil {
		return nil, err
	}
	return buildDocument(&wd, opts)
}

// decodeRaw parses arbitrary JSON, keeping numbers exact, and rejects
// trailing content.
func decodeRaw(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, describeJSONError(err)
	}
	if raw == nil {
		return nil, parseErrorf("", "document must be a JSON object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, parseErrorf("", "trailing content after document")
	}
	return raw, nil
}

func rawVersion(raw map[string]any) (int, error) {
	v, ok := raw["schemaVersion"]
	if !ok {
		return 0, parseErrorf("schemaVersion", "required field missing")
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, parseErrorf("schemaVersion", "must be an integer, got %T", v)
	}
	n, err := num.Int64()
	if err != nil || n < 1 {
		return 0, parseErrorf("schemaVersion", "must be a positive integer, got %s", num)
	}
	return int(n), nil
}

func decodeStrict(data []byte, dst *wireDocument) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return describeJSONError(err)
	}
	return nil
}

func describeJSONError(err error) *ParseError {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return parseErrorf("", "empty input")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return parseErrorf("", "truncated input")
	case errors.As(err, &syntaxErr):
		return parseErrorf("", "invalid JSON at byte %d: %v", syntaxErr.Offset, syntaxErr)
	case errors.As(err, &typeErr):
		return parseErrorf(typeErr.Field, "expected %s, got JSON %s", typeErr.Type, typeErr.Value)
	default:
		return &ParseError{Err: err}
	}
}

// builder accumulates a document while validating references.
type builder struct {
	doc  *Document
	seen map[SheetID]string
}

func buildDocument(wd *wireDocument, opts []Option) (*Document, error) {
	d := newDocument(opts)
	b := &builder{doc: d, seen: make(map[SheetID]string)}

	if wd.DocumentID == nil {
		return nil, parseErrorf("documentId", "required field missing")
	}
	id, err := parseStoredID(*wd.DocumentID, "documentId")
	if err != nil {
		return nil, err
	}
	d.id = id
	d.schemaVersion = *wd.SchemaVersion

	if wd.CreatedAt == nil {
		return nil, parseErrorf("createdAt", "required field missing")
	}
	if d.createdAt, err = parseStoredTime(*wd.CreatedAt, "createdAt"); err != nil {
		return nil, err
	}

	if wd.Tombstones == nil {
		return nil, parseErrorf("tombstones", "required field missing")
	}
	for i, s := range *wd.Tombstones {
		path := fmt.Sprintf("tombstones[%d]", i)
		tid, err := parseStoredID(s, path)
		if err != nil {
			return nil, err
		}
		if _, dup := d.tombstones[tid]; dup || tid == d.id {
			return nil, parseErrorf(path, "duplicate id %s", tid)
		}
		d.tombstones[tid] = struct{}{}
	}

	if wd.Entities == nil {
		return nil, parseErrorf("entities", "required field missing")
	}
	if d.order, err = b.entities(*wd.Entities, Root, "entities"); err != nil {
		return nil, err
	}
	return d, nil
}

func (b *builder) entities(list []wireEntity, parent SheetID, path string) ([]SheetID, error) {
	ids := make([]SheetID, 0, len(list))
	for i := range list {
		id, err := b.entity(&list[i], parent, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *builder) entity(we *wireEntity, parent SheetID, path string) (SheetID, error) {
	d := b.doc
	if we.ID == nil {
		return Root, parseErrorf(path+".id", "required field missing")
	}
	id, err := parseStoredID(*we.ID, path+".id")
	if err != nil {
		return Root, err
	}
	if prev, dup := b.seen[id]; dup {
		return Root, parseErrorf(path+".id", "id %s already used at %s", id, prev)
	}
	if _, dead := d.tombstones[id]; dead || id == d.id {
		return Root, parseErrorf(path+".id", "id %s is retired or reserved", id)
	}
	b.seen[id] = path

	if we.Label == nil {
		return Root, parseErrorf(path+".label", "required field missing")
	}
	if we.Type == nil {
		return Root, parseErrorf(path+".type", "required field missing")
	}
	declared, err := ParseKind(string(*we.Type))
	if err != nil {
		return Root, &ParseError{Path: path + ".type", Err: err}
	}
	if we.Value == nil {
		return Root, parseErrorf(path+".value", "required field missing")
	}
	value, err := decodeValue(we.Value, path+".value")
	if err != nil {
		return Root, err
	}
	if !declared.Accepts(value.Kind()) {
		return Root, parseErrorf(path+".value", "field declared %s holds a %s value", declared, value.Kind())
	}

	if we.CreatedAt == nil {
		return Root, parseErrorf(path+".createdAt", "required field missing")
	}
	createdAt, err := parseStoredTime(*we.CreatedAt, path+".createdAt")
	if err != nil {
		return Root, err
	}
	if we.ModifiedAt == nil {
		return Root, parseErrorf(path+".modifiedAt", "required field missing")
	}
	modifiedAt, err := parseStoredTime(*we.ModifiedAt, path+".modifiedAt")
	if err != nil {
		return Root, err
	}
	if modifiedAt.Before(createdAt) {
		return Root, parseErrorf(path+".modifiedAt", "modifiedAt %s precedes createdAt %s", *we.ModifiedAt, *we.CreatedAt)
	}

	if we.Children == nil {
		return Root, parseErrorf(path+".children", "required field missing")
	}
	if len(*we.Children) > 0 && value.Kind() != KindList {
		return Root, parseErrorf(path+".children", "only list entities may have children")
	}
	children, err := b.entities(*we.Children, id, path+".children")
	if err != nil {
		return Root, err
	}
	if len(children) == 0 {
		children = nil
	}

	d.nodes[id] = &node{
		id:         id,
		parent:     parent,
		label:      *we.Label,
		declared:   declared,
		value:      value,
		createdAt:  createdAt,
		modifiedAt: modifiedAt,
		children:   children,
	}
	return id, nil
}

func decodeValue(wv *wireValue, path string) (Value, error) {
	if wv.Kind == nil {
		return Value{}, parseErrorf(path+".kind", "required field missing")
	}
	present := 0
	for _, set := range []bool{wv.Text != nil, wv.Number != nil, wv.Bool != nil} {
		if set {
			present++
		}
	}

	var v Value
	switch *wv.Kind {
	case KindText:
		if wv.Text == nil {
			return Value{}, parseErrorf(path+".text", "required for text values")
		}
		v = Text(*wv.Text)
	case KindNumber:
		if wv.Number == nil {
			return Value{}, parseErrorf(path+".number", "required for number values")
		}
		v = Number(*wv.Number)
	case KindBool:
		if wv.Bool == nil {
			return Value{}, parseErrorf(path+".bool", "required for bool values")
		}
		v = Bool(*wv.Bool)
	case KindList:
		v = List()
		present++ // a list carries no payload field
	default:
		return Value{}, parseErrorf(path+".kind", "unknown value kind %q", *wv.Kind)
	}
	if present != 1 {
		return Value{}, parseErrorf(path, "%s value carries payload fields of another kind", *wv.Kind)
	}
	return v, nil
}

func parseStoredID(s, path string) (SheetID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Root, &ParseError{Path: path, Message: fmt.Sprintf("bad id %q", s), Err: err}
	}
	if u == uuid.Nil {
		return Root, parseErrorf(path, "nil id is reserved for the root")
	}
	return SheetID(u), nil
}

func parseStoredTime(s, path string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, &ParseError{Path: path, Message: fmt.Sprintf("bad timestamp %q", s), Err: err}
	}
	return t, nil
}
