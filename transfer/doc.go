// Package transfer implements the firmware transfer state machine.
//
// A [Context] owns the per-session state of one update: the verification
// status of the image, the terminal-chunk bookkeeping, and the single
// staging buffer every incoming chunk passes through. Its three methods
// are the callbacks the DFU engine invokes:
//
//   - [Context.PrepareRead]: map a window of the application region for upload
//   - [Context.PrepareWrite]: hand out the staging buffer for a download chunk
//   - [Context.FinishWrite]: validate and program a received chunk
//
// # Verification
//
// The first chunk of every transfer is offered to a [Validator]:
//
//	Unknown --(offset 0, no key)----> OK       chunk is programmed
//	Unknown --(offset 0, bad key)---> Failed   errFILE, transfer aborted
//	Unknown --(offset 0, valid key)-> Pending  chunk consumed, not programmed
//
// Chunks after the first are programmed while the state is OK or Pending.
//
// # Short Chunks
//
// Every chunk is programmed as a full chunk. A short chunk is padded with
// the erased pattern and must be the last one: once a short chunk has been
// accepted, any further nonzero write fails with errADDRESS until a new
// transfer restarts at offset 0.
package transfer
