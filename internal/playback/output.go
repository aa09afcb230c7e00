// Package playback schedules streamed response audio back-to-back on an
// output context so chunks arriving at irregular intervals play without gaps
// or overlaps.
package playback

// Output is an audio output context with its own sample clock. Positions
// are sample indices on that clock.
type Output interface {
	SampleRate() int
	// Position is how many samples the device has consumed.
	Position() int64
	// Schedule queues samples to begin at sample position at.
	Schedule(samples []float32, at int64)
	// Stop discards everything scheduled that has not finished playing.
	Stop()
	Close() error
}
