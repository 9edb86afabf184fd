// Package stream reads compressed archive members progressively.
//
// A Session runs one producer goroutine that decompresses a member into a
// fixed-size window while the consumer reads from it. The two sides hand
// the window back and forth over one-slot signal channels, so at most one
// window of decompressed data is held in memory per open member.
//
// Seeking inside the current window is free. Seeking forward past it makes
// the producer decompress and discard up to the target; seeking backward
// past it reopens the member and decompresses from the start. Every wait
// on the producer is bounded, and an expired wait leaves the session
// permanently failed with ErrTimeout.
package stream
