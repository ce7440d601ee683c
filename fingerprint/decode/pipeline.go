package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Pipeline demuxes one audio file's default track to a mono float32 stream
// at a fixed target sample rate.
type Pipeline struct {
	targetSampleRateHz int
	logger             *log.Logger
}

// NewPipeline builds a Pipeline that resamples every decoded file to
// targetSampleRateHz. A nil logger falls back to log.Default().
func NewPipeline(targetSampleRateHz int, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{targetSampleRateHz: targetSampleRateHz, logger: logger}
}

// DecodeFile opens path, detects its container, decodes its default track,
// downmixes to a single channel, and resamples to the pipeline's target
// rate, returning the complete mono sample buffer.
func (p *Pipeline) DecodeFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: open %s: %w", path, err)
	}

	header, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	dec, err := Open(f, header)
	if err != nil {
		return nil, fmt.Errorf("decode: %s: %w", path, err)
	}
	defer dec.Close()

	resampler, err := NewResampler(dec.SampleRate(), p.targetSampleRateHz)
	if err != nil {
		return nil, fmt.Errorf("decode: %s: %w", path, err)
	}

	var mono []float32
	warnedMultiTrack := false

	for {
		planes, err := dec.NextPlanarChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode: %s: %w", path, err)
		}

		if !warnedMultiTrack && len(planes) > 1 && dec.Channels() > 2 {
			p.logger.Warn("container exposes more tracks/channels than the default layout; decoding only the first", "path", path, "channels", dec.Channels())
			warnedMultiTrack = true
		}

		if len(planes) == 0 {
			continue
		}
		mono = append(mono, planes[0]...)
	}

	mono = resampler.Process(mono)
	if tail := resampler.Flush(); len(tail) > 0 {
		mono = append(mono, tail...)
	}

	return mono, nil
}
