package imgrec

import (
	"fmt"
	"os"
	"sync"

	"github.com/snksoft/crc"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
)

var crcTable = crc.NewTable(crc.CRC32)

// checksum is the CRC-32 of b
func checksum(b []byte) uint32 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, b)
	return crcTable.CRC32(c)
}

// RawBatch describes one append to a raw dump
type RawBatch struct {
	// Frames is the number of frames written
	Frames int `json:"frames"`

	// Bytes is the number of bytes written
	Bytes int `json:"bytes"`

	// CRC is the CRC-32 of the bytes written
	CRC uint32 `json:"crc"`
}

// RawRecorder appends whole frames to a single cumulative file of
// little-endian samples with no header.  The file is opened and closed for
// every batch.
type RawRecorder struct {
	mu sync.Mutex

	// Path is the file appended to
	Path string

	total int64
}

// NewRawRecorder returns a recorder appending to path
func NewRawRecorder(path string) *RawRecorder {
	return &RawRecorder{Path: path}
}

// Append writes the frames, in order, as one batch
func (r *RawRecorder) Append(frames ...camera.Frame) (b RawBatch, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fid, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return b, fmt.Errorf("imgrec: opening raw dump: %w", err)
	}
	defer func() {
		if cerr := fid.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("imgrec: closing raw dump: %w", cerr)
		}
	}()
	c := crcTable.InitCrc()
	for _, f := range frames {
		buf := f.Bytes()
		n, err := fid.Write(buf)
		b.Bytes += n
		r.total += int64(n)
		c = crcTable.UpdateCrc(c, buf[:n])
		if err != nil {
			b.CRC = crcTable.CRC32(c)
			return b, fmt.Errorf("imgrec: writing raw dump: %w", err)
		}
		b.Frames++
	}
	b.CRC = crcTable.CRC32(c)
	return b, nil
}

// Total is the number of bytes appended by this recorder
func (r *RawRecorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
