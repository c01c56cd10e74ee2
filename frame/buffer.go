package frame

import "fmt"

// Buffer holds one 10ms block of deinterleaved audio. Submodules operate
// on it in place; the pipeline copies in from the caller's input slices
// and copies out to the caller's output slices around each frame.
type Buffer struct {
	channels     [][]float32
	sampleRateHz int
}

// NewBuffer allocates a buffer sized for the given stream configuration.
func NewBuffer(cfg StreamConfig) *Buffer {
	samples := cfg.SamplesPerChannel()
	channels := make([][]float32, cfg.NumChannels)
	for i := range channels {
		channels[i] = make([]float32, samples)
	}
	return &Buffer{channels: channels, sampleRateHz: cfg.SampleRateHz}
}

// Channels exposes the per-channel sample slices for in-place
// processing.
func (b *Buffer) Channels() [][]float32 {
	return b.channels
}

// Channel returns the samples of one channel.
func (b *Buffer) Channel(i int) []float32 {
	return b.channels[i]
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.channels)
}

// SamplesPerChannel returns the per-channel block length.
func (b *Buffer) SamplesPerChannel() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// SampleRateHz returns the sample rate the buffer was allocated for.
func (b *Buffer) SampleRateHz() int {
	return b.sampleRateHz
}

// CopyFrom fills the buffer from caller-owned deinterleaved slices. The
// source must carry at least as many channels and samples as the buffer.
func (b *Buffer) CopyFrom(src [][]float32) error {
	if len(src) < len(b.channels) {
		return fmt.Errorf("copy from %d channels into %d-channel buffer", len(src), len(b.channels))
	}
	for i := range b.channels {
		if len(src[i]) < len(b.channels[i]) {
			return fmt.Errorf("channel %d has %d samples, need %d", i, len(src[i]), len(b.channels[i]))
		}
		copy(b.channels[i], src[i])
	}
	return nil
}

// CopyTo writes the buffer into caller-owned deinterleaved slices,
// downmixing by averaging when the destination has fewer channels than
// the buffer.
func (b *Buffer) CopyTo(dst [][]float32) error {
	if len(dst) > len(b.channels) {
		return fmt.Errorf("copy %d-channel buffer into %d channels", len(b.channels), len(dst))
	}
	samples := b.SamplesPerChannel()
	for i := range dst {
		if len(dst[i]) < samples {
			return fmt.Errorf("destination channel %d has %d samples, need %d", i, len(dst[i]), samples)
		}
	}
	if len(dst) == len(b.channels) {
		for i := range dst {
			copy(dst[i], b.channels[i])
		}
		return nil
	}
	// Downmix: average the extra source channels into the last
	// destination channel group.
	perDst := len(b.channels) / len(dst)
	for i := range dst {
		lo := i * perDst
		hi := lo + perDst
		if i == len(dst)-1 {
			hi = len(b.channels)
		}
		scale := float32(1.0) / float32(hi-lo)
		for s := 0; s < samples; s++ {
			var sum float32
			for ch := lo; ch < hi; ch++ {
				sum += b.channels[ch][s]
			}
			dst[i][s] = sum * scale
		}
	}
	return nil
}
