package decode

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavChunkFrames is the number of frames pulled from the decoder per
// PCMBuffer call.
const wavChunkFrames = 4096

type wavDecoder struct {
	rc       io.ReadCloser
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	maxVal   float64
}

func newWAVDecoder(rc io.ReadCloser) (Decoder, error) {
	seeker, ok := rc.(io.ReadSeeker)
	if !ok {
		rc.Close()
		return nil, fmt.Errorf("decode: wav source must support seeking")
	}

	dec := wav.NewDecoder(seeker)
	if !dec.IsValidFile() {
		rc.Close()
		return nil, fmt.Errorf("decode: invalid wav file")
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	return &wavDecoder{
		rc:  rc,
		dec: dec,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
			Data:           make([]int, wavChunkFrames*channels),
			SourceBitDepth: bitDepth,
		},
		channels: channels,
		maxVal:   math.Pow(2, float64(bitDepth-1)) - 1,
	}, nil
}

func (d *wavDecoder) SampleRate() int { return int(d.dec.SampleRate) }
func (d *wavDecoder) Channels() int   { return d.channels }
func (d *wavDecoder) Close() error    { return d.rc.Close() }

func (d *wavDecoder) NextPlanarChunk() ([][]float32, error) {
	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil {
		return nil, fmt.Errorf("decode: wav pcm read: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	frames := n / d.channels
	planes := make([][]float32, d.channels)
	for c := range planes {
		planes[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < d.channels; c++ {
			planes[c][i] = float32(float64(d.buf.Data[i*d.channels+c]) / d.maxVal)
		}
	}
	return planes, nil
}
