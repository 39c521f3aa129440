// Package flow holds the per-user sign-in flow state machine.
//
// A [FlowState] is one record per (channel, user, handler). Its operations are
// pure: they take the current time as an argument and perform no I/O. The
// authorization engine loads a state, calls [FlowState.Refresh], applies one
// transition, and writes it back.
//
// # States
//
//	not_started -> begin -> continue -> complete
//	                            \-----> failure
//
// failure is sticky: Refresh never clears it. Only deleting the record (sign
// out, conversation end) starts over.
//
// # Binary encoding
//
// [Encode] and [Decode] implement a versioned binary layout. The continuation
// activity is embedded as length-prefixed JSON.
package flow
