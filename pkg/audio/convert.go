package audio

import (
	"log/slog"
	"sync"
)

// Converter converts frames to a target format. It downmixes to the target
// channel count first and then resamples, so multi-channel input is never
// resampled per channel. Only mono and pass-through channel layouts are
// produced: a target of more than one channel must match the source.
//
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned unchanged. A frame whose data is not sample-aligned is
// dropped and an empty frame is returned.
func (c *Converter) Convert(frame Frame) Frame {
	align := 2 * max(frame.Channels, 1)
	if len(frame.Data)%align != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: unaligned PCM frame dropped",
				"bytes", len(frame.Data),
				"format", frame.Format.String(),
			)
		})
		return Frame{Format: c.Target, Timestamp: frame.Timestamp}
	}
	if frame.Format == c.Target {
		return frame
	}
	c.warnedMismatch.Do(func() {
		slog.Debug("audio: converting input",
			"from", frame.Format.String(),
			"to", c.Target.String(),
		)
	})

	pcm := frame.Data
	channels := frame.Channels
	if c.Target.Channels == 1 && channels > 1 {
		pcm = Downmix(pcm, channels)
		channels = 1
	}
	if channels == 1 && frame.SampleRate != c.Target.SampleRate {
		pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
	}
	return Frame{
		Data:      pcm,
		Format:    Format{SampleRate: c.Target.SampleRate, Channels: channels},
		Timestamp: frame.Timestamp,
	}
}

// ConvertStream converts every frame read from in and forwards it on the
// returned channel, which is closed when in is closed. Empty frames are
// skipped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// Downmix averages interleaved channels into mono. Trailing bytes that do not
// form a whole frame are ignored.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	width := channels * 2
	frames := len(pcm) / width
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			off := i*width + ch*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate with linear
// interpolation. Input is returned unchanged when the rates match or either
// rate is not positive.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) int16 {
		return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
