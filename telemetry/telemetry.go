/*Package telemetry publishes per-frame summaries and run reports.

Summaries are small JSON documents, suitable for a dashboard or a logger
listening on a message broker.  The image data itself is never published.
*/
package telemetry

import (
	"time"

	"github.jpl.nasa.gov/bdube/picamfft/camera"
)

// FrameSummary describes one acquired frame
type FrameSummary struct {
	RunID  string    `json:"runID"`
	Index  int       `json:"index"`
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Center [3]uint16 `json:"center"`
	Min    uint16    `json:"min"`
	Max    uint16    `json:"max"`
	Mean   float64   `json:"mean"`
	Time   time.Time `json:"time"`
}

// Summarize builds the summary of a frame
func Summarize(runID string, f camera.Frame) FrameSummary {
	s := FrameSummary{
		RunID:  runID,
		Index:  f.Index,
		Rows:   f.Rows,
		Cols:   f.Cols,
		Center: f.CenterThree(),
		Time:   time.Now(),
	}
	if len(f.Pix) == 0 {
		return s
	}
	s.Min, s.Max = f.Pix[0], f.Pix[0]
	var sum float64
	for _, v := range f.Pix {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += float64(v)
	}
	s.Mean = sum / float64(len(f.Pix))
	return s
}

// Report is the final word on a run
type Report struct {
	RunID     string    `json:"runID"`
	Requested int       `json:"requested"`
	Captured  int       `json:"captured"`
	Errors    string    `json:"errors"`
	Persisted int       `json:"persisted"`
	RawBytes  int64     `json:"rawBytes"`
	Cancelled bool      `json:"cancelled"`
	Err       string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// NewReport fills the acquisition half of a Report
func NewReport(runID string, r camera.AcquisitionReport) Report {
	out := Report{
		RunID:     runID,
		Requested: r.Requested,
		Captured:  r.Captured,
		Errors:    r.Errors.String(),
		Time:      time.Now(),
	}
	if err := r.Err(); err != nil {
		out.Err = err.Error()
	}
	return out
}

// Publisher sends telemetry somewhere
type Publisher interface {
	Frame(FrameSummary) error
	Report(Report) error
	Close() error
}

// Nop is a Publisher that drops everything
type Nop struct{}

// Frame implements Publisher
func (Nop) Frame(FrameSummary) error { return nil }

// Report implements Publisher
func (Nop) Report(Report) error { return nil }

// Close implements Publisher
func (Nop) Close() error { return nil }
