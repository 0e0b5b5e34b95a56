// Package audio is the adapter for the engine's "audio input contract":
// it turns a WAV or MP3 stream into the raw mono PCM []float64 the
// Spectral Front-End consumes, down-mixing multi-channel input and
// optionally resampling to SR. Decode itself is a declared-out-of-scope
// collaborator — nothing past this package's boundary depends on how a
// given container format is parsed.
package audio

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// PCM is a decoded audio buffer: mono samples in [-1.0, 1.0] at
// SampleRate Hz.
type PCM struct {
	Samples    []float64
	SampleRate int
}

// DecodeWAV reads a WAV container from r and returns mono PCM,
// down-mixing by arithmetic mean if the source has more than one
// channel.
func DecodeWAV(r io.Reader) (*PCM, error) {
	ra, ok := r.(io.ReadSeeker)
	if !ok {
		ra = &readSeekerBuf{r: r}
	}
	decoder := wav.NewDecoder(ra)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("decoding wav: not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading wav pcm: %w", err)
	}

	return &PCM{
		Samples:    downmix(buf),
		SampleRate: int(decoder.SampleRate),
	}, nil
}

// DecodeMP3 reads an MP3 stream from r and returns mono PCM. go-mp3
// always decodes to 16-bit stereo PCM; DecodeMP3 downmixes to mono by
// arithmetic mean of the two channels, per the engine's input contract.
func DecodeMP3(r io.Reader) (*PCM, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("opening mp3 stream: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 pcm: %w", err)
	}

	// go-mp3 emits interleaved little-endian int16 stereo.
	frameCount := len(raw) / 4
	samples := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		left := int16(raw[i*4]) | int16(raw[i*4+1])<<8
		right := int16(raw[i*4+2]) | int16(raw[i*4+3])<<8
		samples[i] = (float64(left) + float64(right)) / 2 / 32768.0
	}

	return &PCM{Samples: samples, SampleRate: dec.SampleRate()}, nil
}

// downmix averages buf's channels into one float64 stream scaled to
// [-1.0, 1.0], using go-audio/audio's own AsFloat32Buffer normalization
// so bit-depth handling stays in the library rather than hand-rolled.
func downmix(buf *audio.IntBuffer) []float64 {
	floatBuf := buf.AsFloat32Buffer()
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	frames := len(floatBuf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(floatBuf.Data[i*channels+c])
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Resample linearly interpolates samples from srcRate to dstRate. The
// worker daemon applies it to decoded files whose rate differs from SR;
// internal/sfe itself assumes its input is already at SR and never
// calls it.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float64, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		lo := int(srcPos)
		frac := srcPos - float64(lo)
		if lo+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

// readSeekerBuf adapts a plain io.Reader to io.ReadSeeker by buffering
// it fully in memory; wav.NewDecoder requires seeking to parse chunks
// out of order, which a streamed reader (e.g. an HTTP body) can't do
// natively.
type readSeekerBuf struct {
	r    io.Reader
	data []byte
	pos  int64
	read bool
}

func (b *readSeekerBuf) fill() error {
	if b.read {
		return nil
	}
	data, err := io.ReadAll(b.r)
	if err != nil {
		return err
	}
	b.data = data
	b.read = true
	return nil
}

func (b *readSeekerBuf) Read(p []byte) (int, error) {
	if err := b.fill(); err != nil {
		return 0, err
	}
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *readSeekerBuf) Seek(offset int64, whence int) (int64, error) {
	if err := b.fill(); err != nil {
		return 0, err
	}
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	}
	b.pos = newPos
	return b.pos, nil
}
