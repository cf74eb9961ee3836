package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// value returns the first sample of the named family matching all labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordTraining("gold", 1.5, true)
	r.RecordTraining("gold", 0.5, false)
	r.RecordModelFit("diamond", 0.93, 410.2, 5000)
	r.RecordPredictionError("gold", "unavailable")
	r.RecordPrediction("gold", 0.001)

	if got := value(t, reg, "jewelforecast_trainings_total", map[string]string{"model": "gold", "result": "success"}); got != 1 {
		t.Fatalf("success count: %v", got)
	}
	if got := value(t, reg, "jewelforecast_training_duration_seconds", map[string]string{"model": "gold"}); got != 2 {
		t.Fatalf("training observations: %v", got)
	}
	if got := value(t, reg, "jewelforecast_model_r2", map[string]string{"model": "diamond"}); got != 0.93 {
		t.Fatalf("r2 gauge: %v", got)
	}
	if got := value(t, reg, "jewelforecast_prediction_errors_total", map[string]string{"kind": "unavailable"}); got != 1 {
		t.Fatalf("prediction errors: %v", got)
	}
}
