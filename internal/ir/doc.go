// Package ir provides the canonical types shared by every lutwrap package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Addresses are fixed 32-byte values, rendered as base58 text
//   - Time is the ledger slot (Slot), never wall-clock time
//   - The known-entry mirror is a bounded array (MaxEntries), never a
//     growable list
//   - All JSON tags use snake_case
package ir
