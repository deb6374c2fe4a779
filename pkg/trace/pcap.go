// Package trace records simulated wire traffic to pcap files
package trace

import (
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// tickDuration maps one engine tick onto capture timestamps
const tickDuration = 100 * time.Millisecond

// Writer streams every delivered frame into a pcap file. Timestamps are
// synthetic: tick zero is the Unix epoch, so identical runs produce identical
// captures.
type Writer struct {
	f *os.File
	w *pcapgo.Writer
}

// Create opens a pcap file for writing
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// WriteFrame records one frame delivered at the given tick
func (w *Writer) WriteFrame(tick uint64, frame []byte) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).UTC().Add(time.Duration(tick) * tickDuration),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	return w.w.WritePacket(ci, frame)
}

// Close flushes and closes the file
func (w *Writer) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	return w.f.Close()
}
