// Package session models the interview session document and its status
// transitions.
//
// A Session is mutated only through the methods in this package, which keep
// the response log, counters and score projections consistent with each
// other. The engine package serializes calls per session; nothing here is safe
// for concurrent use.
package session
