// Package event defines the vocabulary of a recorded execution: event IDs,
// the closed set of event kinds with their metadata table, instruction
// references and typed value payloads.
//
// Event IDs are dense and global across threads. A kind is a 6-bit tag;
// everything the engine needs to know about a kind (which payload fields
// it carries, whether it starts or ends a call, whether it writes the
// heap) is read from its Info record rather than from per-kind methods.
package event
