// Package directory defines the delegated-call surface of the address
// lookup table ("directory") program and ships a deterministic in-process
// implementation of its native rules.
//
// The wrapper never touches table bytes directly. It holds a Program bound
// to the account view of the current transaction and issues CreateTable,
// ExtendTable, DeactivateTable and CloseTable calls, each carrying the
// record's pda.Authority token. ReadTable returns the raw account data,
// which DecodeTable parses using the native 56-byte header layout.
//
// Native enforces the program-side rules the wrapper relies on: recent slot
// window on create, the 256-address ceiling, authority checks, and the
// deactivation cooldown that gates close.
package directory
