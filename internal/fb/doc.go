// Package fb holds the FlatBuffers bindings for persisted listings.
//
// The bindings follow flatc's Go output for schema/index.fbs.
package fb

//go:generate flatc --go --go-namespace fb -o .. schema/index.fbs
