package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// Headers are the summary CSV columns.
var Headers = []string{
	"strategy", "fill", "valid_fraction", "mean_epe", "photometric_error", "consistency", "duration_ms",
}

// CSVWriter wraps csv.Writer with methods for sweep output.
type CSVWriter struct {
	Summary *csv.Writer
}

// NewCSVWriter creates a new CSVWriter writing to summary.
func NewCSVWriter(summary io.Writer) *CSVWriter {
	return &CSVWriter{Summary: csv.NewWriter(summary)}
}

// WriteHeader writes the header row.
func (c *CSVWriter) WriteHeader() error {
	return c.Summary.Write(Headers)
}

// WriteResult writes one row. Failed combinations are skipped; scores that
// were not computed are left empty.
func (c *CSVWriter) WriteResult(r Result) error {
	if r.Err != nil {
		return nil
	}
	epe := ""
	if r.Metrics != nil {
		epe = formatFloat(r.Metrics.All.Mean)
	}
	photo := ""
	if r.Photometric != nil {
		photo = formatFloat(*r.Photometric)
	}
	return c.Summary.Write([]string{
		string(r.Combo.Strategy),
		string(r.Combo.Fill),
		formatFloat(r.Stats.ValidFraction()),
		epe,
		photo,
		formatFloat(r.Consistency),
		fmt.Sprintf("%.3f", float64(r.Stats.Elapsed().Microseconds())/1000),
	})
}

// WriteResults writes a header followed by every result and flushes.
func (c *CSVWriter) WriteResults(results []Result) error {
	if err := c.WriteHeader(); err != nil {
		return err
	}
	for _, r := range results {
		if err := c.WriteResult(r); err != nil {
			return err
		}
	}
	c.Summary.Flush()
	return c.Summary.Error()
}

// LogSummary logs the spread of valid fraction and consistency across the
// successful results.
func LogSummary(results []Result) {
	var valid, consistency []float64
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		valid = append(valid, r.Stats.ValidFraction())
		consistency = append(consistency, r.Consistency)
	}
	if len(valid) == 0 {
		monitoring.Logf("[sweep] WARNING: no successful combinations")
		return
	}
	vm, vs := stat.MeanStdDev(valid, nil)
	cm, cs := stat.MeanStdDev(consistency, nil)
	monitoring.Logf("[sweep] %d/%d combinations ok: valid_fraction=%.4f±%.4f consistency=%.4f±%.4f",
		len(valid), len(results), vm, vs, cm, cs)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
