package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/spcwatch/spcwatch/pkg/types"
)

// ScopeKeySeparator joins the configured label values into a scope key.
const ScopeKeySeparator = ":"

// Reader turns exposition-format instrument readings into measurements.
// Metric selects the metric family to read; ScopeLabels are the label
// names, in order, whose values form the scope key.
type Reader struct {
	Metric      string
	ScopeLabels []string

	// Now supplies the timestamp for samples that carry none.
	// Defaults to time.Now when nil.
	Now func() time.Time
}

// Parse decodes a Prometheus text exposition from r and returns one
// Measurement per gauge, counter or untyped sample of the configured metric,
// ordered by timestamp ascending within the whole batch. Samples missing any
// scope label are skipped with a warning rather than failing the batch.
//
// The exposition timestamp (milliseconds) is honoured when present;
// timestampless samples are stamped with the current time.
func (rd *Reader) Parse(r io.Reader) ([]types.Measurement, error) {
	mfs, err := parseFamilies(r)
	if err != nil {
		return nil, err
	}

	mf, ok := mfs[rd.Metric]
	if !ok {
		return nil, nil
	}

	now := time.Now
	if rd.Now != nil {
		now = rd.Now
	}

	out := make([]types.Measurement, 0, len(mf.GetMetric()))
	for _, m := range mf.GetMetric() {
		scope, ok := rd.scopeKey(m)
		if !ok {
			slog.Warn("ingest: sample missing scope labels — skipped",
				"metric", rd.Metric, "labels", labelString(m))
			continue
		}

		value, ok := sampleValue(m)
		if !ok {
			continue
		}

		// Pointer check, not a zero check: an explicit timestamp of 0 is a
		// legitimate epoch reading, distinct from an absent timestamp.
		ts := now().UTC()
		if m.TimestampMs != nil {
			ts = time.UnixMilli(m.GetTimestampMs()).UTC()
		}

		out = append(out, types.Measurement{
			ScopeKey:  scope,
			Value:     value,
			Timestamp: ts,
		})
	}

	// Collaborator contract: measurements are handed over ordered by
	// timestamp ascending.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Grouped parses r and splits the batch per scope, preserving timestamp order.
// The result can directly back a baseline.SliceSource.
func (rd *Reader) Grouped(r io.Reader) (map[string][]types.Measurement, error) {
	all, err := rd.Parse(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]types.Measurement)
	for _, m := range all {
		out[m.ScopeKey] = append(out[m.ScopeKey], m)
	}
	return out, nil
}

// scopeKey builds the scope key from the configured labels, in order.
// Returns false if any label is absent.
func (rd *Reader) scopeKey(m *dto.Metric) (string, bool) {
	byName := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		byName[lp.GetName()] = lp.GetValue()
	}

	parts := make([]string, 0, len(rd.ScopeLabels))
	for _, name := range rd.ScopeLabels {
		v, ok := byName[name]
		if !ok || v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ScopeKeySeparator), true
}

// parseFamilies decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned
// successfully.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("ingest: parse exposition text: %w", err)
	}
	return mfs, nil
}

// sampleValue extracts the scalar from a gauge, counter or untyped sample.
func sampleValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	default:
		return 0, false
	}
}

func labelString(m *dto.Metric) string {
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, lp.GetName()+"="+lp.GetValue())
	}
	return strings.Join(parts, ",")
}
