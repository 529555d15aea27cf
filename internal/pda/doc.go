// Package pda derives program addresses and the authority tokens that let a
// wrapper record act as the delegated authority of its directory table.
//
// A program-derived address is SHA-256(seeds || program id ||
// "ProgramDerivedAddress") that does not decode to an ed25519 point, so no
// private key exists for it. The only way to "sign" for such an address is
// to present the seeds and bump that reproduce it. Authority carries exactly
// that proof material and is passed explicitly to every delegated call.
package pda
