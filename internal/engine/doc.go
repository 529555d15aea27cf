// Package engine implements the wrapper record lifecycle.
//
// The engine owns the four state transitions of a wrapper record and the
// guards in front of them:
//
//	create -> extend* -> deactivate -> close
//
// ARCHITECTURE:
//
// Transactional Operations:
// Every operation runs inside one store transaction. The directory program
// is bound to that transaction's account view, so a rejected delegated call
// leaves no trace: no record change, no table change, no event.
//
// Extend Check Order:
// 1. Authorize (record exists, caller owns it, table matches)
// 2. Cooldown (now >= last_mutated_at + cooldown)
// 3. Dedup against the policy's source (live table or local mirror)
// 4. Empty-after-dedup (reject or no-op, per policy)
// 5. Capacity (current + new <= max entries)
//
// Single-Writer Dispatch:
// Submit enqueues a request to a FIFO queue drained by Run in one
// goroutine. Callers that already serialize access may call Create,
// Extend, Deactivate and Close directly.
//
// Logical Time:
// "Now" always comes from an ir.Clock. The engine never reads wall-clock
// time for lifecycle decisions.
//
// Errors carry go-errors envelopes with stable text codes; see ErrorCode.
package engine
