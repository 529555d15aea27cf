// Package harness runs lifecycle scenarios against a real engine.
//
// A scenario is a YAML file naming a sequence of steps (warp, create,
// extend, deactivate, close), the outcome each step must have, and
// assertions over the final records, tables and event log:
//
//	name: cooldown
//	description: extend inside the cooldown window is rejected
//	start_slot: 100
//	steps:
//	  - op: create
//	    caller: alice
//	    id: 0
//	  - op: extend
//	    at: 110
//	    caller: alice
//	    record: alice/0
//	    entries: [a, b]
//	    expect:
//	      error: LUT_NOT_READY
//
// Addresses are written as names and resolved through a
// testutil.AddressBook. A successful create registers "<caller>/<id>" for
// the record and "<caller>/<id>/table" for its table.
//
// Each run uses a fresh in-memory store, a slot clock starting at
// start_slot and sequential request ids, so traces are byte-identical
// between runs and can be compared against golden files with
// RunWithGolden.
package harness
