package metrics

import (
	"encoding/json"
	"io"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/sgn-project/sgnd/errors"
)

// jsonFamily is the flat shape each metric family renders to in /metrics
// (default, non-Prometheus) output.
type jsonFamily struct {
	Name    string             `json:"name"`
	Help    string             `json:"help"`
	Type    string             `json:"type"`
	Metrics []map[string]any   `json:"metrics"`
}

// RenderJSON walks the registry's families into the flat JSON shape used
// by the default (non-"?format=prom") /metrics response.
func (r *Registry) RenderJSON() ([]byte, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gather metric families")
	}

	out := make([]jsonFamily, 0, len(families))
	for _, mf := range families {
		jf := jsonFamily{
			Name: mf.GetName(),
			Help: mf.GetHelp(),
			Type: mf.GetType().String(),
		}
		for _, m := range mf.GetMetric() {
			jf.Metrics = append(jf.Metrics, metricToMap(m))
		}
		out = append(out, jf)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "marshal metrics json")
	}
	return data, nil
}

func metricToMap(m *dto.Metric) map[string]any {
	entry := map[string]any{}
	for _, l := range m.GetLabel() {
		entry[l.GetName()] = l.GetValue()
	}
	switch {
	case m.Counter != nil:
		entry["value"] = m.GetCounter().GetValue()
	case m.Gauge != nil:
		entry["value"] = m.GetGauge().GetValue()
	case m.Summary != nil:
		s := m.GetSummary()
		entry["sample_count"] = s.GetSampleCount()
		entry["sample_sum"] = s.GetSampleSum()
		quantiles := map[string]float64{}
		for _, q := range s.GetQuantile() {
			quantiles[formatQuantile(q.GetQuantile())] = q.GetValue()
		}
		entry["quantiles"] = quantiles
	}
	return entry
}

func formatQuantile(q float64) string {
	return "p" + strconv.FormatFloat(q*100, 'f', -1, 64)
}

// RenderProm writes the registry's families in Prometheus text exposition
// format (the "?format=prom" variant of /metrics).
func (r *Registry) RenderProm(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metric families")
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Wrap(err, "encode metric family")
		}
	}
	return nil
}
