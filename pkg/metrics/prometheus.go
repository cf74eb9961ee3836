package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	predictions      *prometheus.HistogramVec
	predictionErrors *prometheus.CounterVec
	trainings        *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	modelR2          *prometheus.GaugeVec
	modelRMSE        *prometheus.GaugeVec
	modelDataPoints  *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jewelforecast_prediction_duration_seconds",
				Help:    "Latency of served predictions",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"model"},
		),
		predictionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jewelforecast_prediction_errors_total",
				Help: "Failed predictions by model and error kind",
			},
			[]string{"model", "kind"},
		),
		trainings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jewelforecast_trainings_total",
				Help: "Training runs by model and result",
			},
			[]string{"model", "result"},
		),
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jewelforecast_training_duration_seconds",
				Help:    "Wall time of training runs",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model"},
		),
		modelR2: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jewelforecast_model_r2",
				Help: "Training-set R2 of the most recently trained model",
			},
			[]string{"model"},
		),
		modelRMSE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jewelforecast_model_rmse",
				Help: "Training-set RMSE of the most recently trained model",
			},
			[]string{"model"},
		),
		modelDataPoints: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jewelforecast_model_data_points",
				Help: "Rows used to fit the most recently trained model",
			},
			[]string{"model"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jewelforecast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jewelforecast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPrediction(model string, seconds float64) {
	r.predictions.WithLabelValues(model).Observe(seconds)
}

func (r *Recorder) RecordPredictionError(model, kind string) {
	r.predictionErrors.WithLabelValues(model, kind).Inc()
}

func (r *Recorder) RecordTraining(model string, seconds float64, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.trainings.WithLabelValues(model, result).Inc()
	r.trainingDuration.WithLabelValues(model).Observe(seconds)
}

func (r *Recorder) RecordModelFit(model string, r2, rmse float64, dataPoints int) {
	r.modelR2.WithLabelValues(model).Set(r2)
	r.modelRMSE.WithLabelValues(model).Set(rmse)
	r.modelDataPoints.WithLabelValues(model).Set(float64(dataPoints))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards everything. Used by the CLI and tests.
type Noop struct{}

func (Noop) RecordPrediction(string, float64)             {}
func (Noop) RecordPredictionError(string, string)         {}
func (Noop) RecordTraining(string, float64, bool)         {}
func (Noop) RecordModelFit(string, float64, float64, int) {}
func (Noop) RecordError(string)                           {}
func (Noop) RecordLatency(string, float64)                {}
