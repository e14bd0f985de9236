package sheet

import (
	"fmt"

	"github.com/google/uuid"
)

// SheetID is the stable identity of an entity or a document.
// The zero SheetID is Root, the implicit parent of top-level entities.
type SheetID uuid.UUID

// Root addresses the document's top level in parent-taking operations.
var Root = SheetID(uuid.Nil)

// IsRoot reports whether id addresses the document root.
func (id SheetID) IsRoot() bool {
	return id == Root
}

// String returns the hyphenated UUID form, or "root" for Root.
func (id SheetID) String() string {
	if id.IsRoot() {
		return "root"
	}
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id SheetID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *SheetID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = SheetID(u)
	return nil
}

// ParseID parses a hyphenated UUID. The literal "root" parses to Root.
func ParseID(s string) (SheetID, error) {
	if s == "root" {
		return Root, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Root, fmt.Errorf("%w: bad id %q: %v", ErrInvalidArgument, s, err)
	}
	return SheetID(u), nil
}

// IDGenerator supplies fresh 128-bit identifiers.
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDGenerator draws random (version 4) UUIDs from crypto/rand.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// NewID returns a new random UUID. Panics if the entropy source fails.
func (UUIDGenerator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewRandom())
}
