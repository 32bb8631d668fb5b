// Package snapshot encodes the chain table and mirrors it to durable storage.
//
// The canonical form is a two-column CSV ("Redirect Chain,Occurrences") with
// hops joined by " -> ". Every Persist call rewrites the whole table; there is
// no append mode.
package snapshot
