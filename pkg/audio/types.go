// Package audio carries raw PCM audio from an input to server-side speech
// recognisers.
//
// All audio is 16-bit signed little-endian PCM. A [Source] produces frames in
// its native [Format]; recognisers subscribe and convert to the format their
// backend expects with [Converter].
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of f for 16-bit samples.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// FrameBytes returns the size in bytes of a frame lasting d, rounded down to
// a whole number of samples across all channels.
func (f Format) FrameBytes(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	align := f.Channels * 2
	if align <= 0 {
		return n
	}
	return n - n%align
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	switch {
	case f.Channels == 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case f.Channels == 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Frame is a chunk of PCM audio.
type Frame struct {
	Data []byte
	Format

	// Timestamp is the capture offset relative to the start of the source.
	Timestamp time.Duration
}
