package decode

import (
	"fmt"
	"io"

	"github.com/llehouerou/go-aac"
)

// adtsSyncWord is the 12-bit ADTS frame sync pattern (0xFFF) as it appears
// in the first 12 bits of every ADTS frame header.
const adtsSyncWord = 0xFFF

// aacDecoder adapts llehouerou/go-aac's per-frame Decoder to the Decoder
// interface by splitting the underlying ADTS bitstream into frames itself
// (the library decodes one already-bounded frame per call) and feeding each
// frame's bytes through Decode.
type aacDecoder struct {
	rc         io.ReadCloser
	dec        *aac.Decoder
	raw        []byte
	sampleRate int
	channels   int
}

func newAACDecoder(rc io.ReadCloser) (Decoder, error) {
	raw, err := io.ReadAll(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decode: aac read: %w", err)
	}

	dec := aac.NewDecoder()
	dec.SetConfiguration(aac.Config{
		DefObjectType: aac.ObjectTypeLC,
		DefSampleRate: 44100,
		OutputFormat:  aac.OutputFormat16Bit,
	})

	_, hdr, err := nextADTSFrame(raw, 0)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decode: locate first adts frame: %w", err)
	}

	return &aacDecoder{
		rc:         rc,
		dec:        dec,
		raw:        raw,
		sampleRate: hdr.sampleRate,
		channels:   hdr.channels,
	}, nil
}

func (d *aacDecoder) SampleRate() int { return d.sampleRate }
func (d *aacDecoder) Channels() int   { return d.channels }

func (d *aacDecoder) Close() error {
	d.dec.Close()
	return d.rc.Close()
}

func (d *aacDecoder) NextPlanarChunk() ([][]float32, error) {
	off, hdr, err := nextADTSFrame(d.raw, 0)
	if err != nil {
		return nil, io.EOF
	}

	end := off + hdr.frameLength
	if end > len(d.raw) {
		return nil, io.EOF
	}

	frame := d.raw[off:end]
	d.raw = d.raw[end:]

	samples, _, err := d.dec.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("decode: aac frame: %w", err)
	}

	ints, _ := samples.([]int16)
	if len(ints) == 0 {
		// The first frame(s) of a stream commonly yield no samples due to
		// the codec's overlap-add startup delay; an empty, non-planar
		// chunk keeps the caller's loop advancing without treating that as
		// an error or as end of stream.
		return [][]float32{{}}, nil
	}

	frames := len(ints) / hdr.channels
	planes := make([][]float32, hdr.channels)
	for c := range planes {
		planes[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < hdr.channels; c++ {
			planes[c][i] = float32(ints[i*hdr.channels+c]) / 32768
		}
	}
	return planes, nil
}

type adtsHeader struct {
	frameLength int
	sampleRate  int
	channels    int
}

var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// nextADTSFrame scans raw starting at from for the next ADTS frame header
// and returns its start offset and parsed fields.
func nextADTSFrame(raw []byte, from int) (int, adtsHeader, error) {
	for i := from; i+7 <= len(raw); i++ {
		sync := uint16(raw[i])<<4 | uint16(raw[i+1])>>4
		if sync != adtsSyncWord {
			continue
		}

		sfIdx := (raw[i+2] >> 2) & 0x0F
		if int(sfIdx) >= len(adtsSampleRates) {
			continue
		}
		channelCfg := ((raw[i+2] & 0x01) << 2) | (raw[i+3] >> 6)
		frameLen := (int(raw[i+3]&0x03) << 11) | (int(raw[i+4]) << 3) | (int(raw[i+5]) >> 5)
		if frameLen < 7 || i+frameLen > len(raw) {
			continue
		}

		return i, adtsHeader{
			frameLength: frameLen,
			sampleRate:  adtsSampleRates[sfIdx],
			channels:    int(channelCfg),
		}, nil
	}
	return 0, adtsHeader{}, fmt.Errorf("decode: no adts sync word found")
}
