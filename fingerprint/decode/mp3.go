package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// mp3ChunkBytes is the number of interleaved 16-bit stereo bytes pulled from
// the decoder per NextPlanarChunk call; always a multiple of 4 (two 16-bit
// samples per frame).
const mp3ChunkBytes = 4096 * 4

// mp3Decoder adapts go-mp3's io.Reader-based stream (always 16-bit stereo)
// to the Decoder interface, deinterleaving the two channel planes.
type mp3Decoder struct {
	rc  io.ReadCloser
	dec *mp3.Decoder
	buf []byte
}

func newMP3Decoder(rc io.ReadCloser) (Decoder, error) {
	dec, err := mp3.NewDecoder(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decode: mp3 open: %w", err)
	}
	return &mp3Decoder{rc: rc, dec: dec, buf: make([]byte, mp3ChunkBytes)}, nil
}

func (d *mp3Decoder) SampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) Channels() int   { return 2 }
func (d *mp3Decoder) Close() error    { return d.rc.Close() }

func (d *mp3Decoder) NextPlanarChunk() ([][]float32, error) {
	n, err := io.ReadFull(d.dec, d.buf)
	if n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode: mp3 read: %w", err)
	}
	// ReadFull returns io.ErrUnexpectedEOF for a short final read; the bytes
	// already read are still valid and are emitted as the last chunk.
	n -= n % 4

	frames := n / 4
	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(d.buf[i*4:]))
		r := int16(binary.LittleEndian.Uint16(d.buf[i*4+2:]))
		left[i] = float32(l) / 32768
		right[i] = float32(r) / 32768
	}

	return [][]float32{left, right}, nil
}
