// Package plandump writes per-frame plan summaries as zstd-compressed
// newline-delimited JSON, and reads them back.
package plandump

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/orchestrator"
)

// Record kinds.
const (
	KindPlan       = "plan"
	KindStatistics = "stats"
)

// Record is one line of a dump. Plan records carry the decision, statistics
// records what the dispatcher reported.
type Record struct {
	Kind    string `json:"kind"`
	Session string `json:"session,omitempty"`
	Frame   int64  `json:"frame"`

	Type       string  `json:"type,omitempty"`
	Level      string  `json:"level,omitempty"`
	QP         int     `json:"qp,omitempty"`
	TargetSize int64   `json:"target_size,omitempty"`
	Deviation  float64 `json:"deviation,omitempty"`
	Panic      bool    `json:"panic,omitempty"`
	Regions    int     `json:"regions,omitempty"`
	Spans      int     `json:"spans,omitempty"`
	Waves      int     `json:"waves,omitempty"`
	ROIRatio   int     `json:"roi_ratio,omitempty"`
	Background int     `json:"background,omitempty"`
	Handle     string  `json:"handle,omitempty"`

	Bits      int64   `json:"bits,omitempty"`
	AverageQP float64 `json:"average_qp,omitempty"`
	Passes    int     `json:"passes,omitempty"`
}

// FromPlan summarizes a plan.
func FromPlan(p *orchestrator.FramePlan) Record {
	r := Record{
		Kind:       KindPlan,
		Session:    p.SessionID,
		Frame:      p.Frame.FrameNumber,
		Type:       p.Frame.Type.String(),
		Level:      p.Decision.Level.String(),
		QP:         p.Decision.QP,
		TargetSize: p.Decision.TargetSize,
		Deviation:  p.Decision.Deviation,
		Panic:      p.Decision.Panic,
		Handle:     string(p.Handle),
	}
	if p.Partition != nil {
		r.Regions = p.Partition.NumRegions
		r.Spans = len(p.Partition.Spans)
		r.Waves = p.Partition.TotalWaves
	}
	if p.Regions != nil {
		r.ROIRatio = p.Regions.ROIRatio
		r.Background = int(p.Regions.Background)
	}
	return r
}

// FromStatistics records a frame's reported statistics.
func FromStatistics(frame int64, st orchestrator.FrameStatistics) Record {
	return Record{
		Kind:      KindStatistics,
		Frame:     frame,
		Bits:      st.BitsProduced,
		AverageQP: st.AverageQP,
		Passes:    st.PassCount,
	}
}

// Writer appends records to a compressed stream.
type Writer struct {
	enc   *zstd.Encoder
	json  *json.Encoder
	file  *os.File
	count int
}

// NewWriter compresses records into w.
func NewWriter(w io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, brcerrors.NewIOError("create zstd encoder", err)
	}
	return &Writer{enc: enc, json: json.NewEncoder(enc)}, nil
}

// Create opens path for writing. Close also closes the file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, brcerrors.NewIOError("create plan dump", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	if err := w.json.Encode(r); err != nil {
		return brcerrors.NewIOError(fmt.Sprintf("write record for frame %d", r.Frame), err)
	}
	w.count++
	return nil
}

// WritePlan appends the summary of p.
func (w *Writer) WritePlan(p *orchestrator.FramePlan) error {
	return w.Write(FromPlan(p))
}

// WriteStatistics appends a statistics record.
func (w *Writer) WriteStatistics(frame int64, st orchestrator.FrameStatistics) error {
	return w.Write(FromStatistics(frame, st))
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Close flushes the stream.
func (w *Writer) Close() error {
	err := w.enc.Close()
	if w.file != nil {
		err = errors.Join(err, w.file.Close())
	}
	if err != nil {
		return brcerrors.NewIOError("close plan dump", err)
	}
	return nil
}

// Reader decodes records from a compressed stream.
type Reader struct {
	dec  *zstd.Decoder
	scan *bufio.Scanner
	file *os.File
}

// NewReader decompresses records from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, brcerrors.NewSerializationError("open plan dump", err)
	}
	scan := bufio.NewScanner(dec)
	scan.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{dec: dec, scan: scan}, nil
}

// Open opens a dump file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, brcerrors.NewIOError("open plan dump", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Next returns the next record, or io.EOF after the last.
func (r *Reader) Next() (Record, error) {
	if !r.scan.Scan() {
		if err := r.scan.Err(); err != nil {
			return Record{}, brcerrors.NewSerializationError("read plan dump", err)
		}
		return Record{}, io.EOF
	}
	var rec Record
	if err := json.Unmarshal(r.scan.Bytes(), &rec); err != nil {
		return Record{}, brcerrors.NewSerializationError("decode record", err)
	}
	return rec, nil
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close releases the decoder and any file.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return brcerrors.NewIOError("close plan dump", err)
		}
	}
	return nil
}
