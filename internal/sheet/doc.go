// Package sheet is the document engine behind sheetmyself.
//
// A Document is a tree of named, typed entities (fields, sections and list
// entries). Entities live in an id-indexed table; each parent keeps the
// ordered ids of its live children, and the document root keeps the ordered
// top-level ids. Deleting an entity removes it from the table and from its
// parent's order and records its id in the tombstone set, so an id is never
// handed out twice for the lifetime of a document lineage.
//
// # Capabilities
//
// Identity and time are injected:
//   - IDGenerator supplies entity and document ids (UUIDGenerator by default)
//   - Clock supplies timestamps (SystemClock by default)
//
// Tests pass deterministic fakes from internal/testutil.
//
// # Persistence format
//
// Serialize produces indented JSON with a fixed field order. Deserialize is
// strict: unknown fields, trailing content, missing required fields and
// invalid references all fail with a *ParseError. Stored documents older than
// CurrentSchemaVersion are upgraded through the migration chain; newer ones
// fail with an *UnsupportedVersionError.
//
// # Concurrency
//
// The model assumes a single writer. A Document nevertheless guards its whole
// structure with one mutex so a front-end dispatching from several goroutines
// stays correct.
package sheet
