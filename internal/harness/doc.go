// Package harness runs scripted document scenarios for conformance tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: ava_mara
//	description: "What this scenario validates"
//	steps:
//	  - op: create
//	    ref: name
//	    parent: root
//	    label: Name
//	    value: Ava
//	  - op: update
//	    target: name
//	    value: Mara
//	  - op: roundtrip
//	  - op: check
//	    target: name
//	    expect: { label: Name, value: Mara }
//
// Refs name the ids returned by create steps; "root" addresses the
// document root. Values are typed by their YAML form: strings are text,
// numbers are numbers, booleans are bools and an empty sequence ([]) is a
// list.
//
// # Operations
//
//   - create: parent, label, value, optional type and ref
//   - update: target, value
//   - rename: target, label
//   - delete: target
//   - reorder: parent, order (list of refs)
//   - roundtrip: serialize and deserialize the document, require equality,
//     and continue with the loaded copy
//   - check: target, expect (label, value, children, tombstoned)
//
// Any mutating step may set expect_error to one of not_found,
// invalid_argument or type_mismatch; the step must then fail with that
// error and leave the document unchanged.
//
// # Deterministic Testing
//
// Every scenario runs against a fresh document with sequential ids
// (testutil.SequenceIDs) and a one-second-per-reading clock
// (testutil.DeterministicClock), so the final serialized document can be
// compared against a golden file.
package harness
