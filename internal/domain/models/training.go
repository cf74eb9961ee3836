package models

import "time"

// TrainingMetrics are goodness-of-fit numbers measured on the training set.
type TrainingMetrics struct {
	R2         float64 `json:"r2"`
	RMSE       float64 `json:"rmse"`
	MAE        float64 `json:"mae"`
	MAPE       float64 `json:"mape,omitempty"`
	DataPoints int     `json:"data_points"`
}

// TrainingLogEntry is an append-only audit record of one successful training run.
type TrainingLogEntry struct {
	ModelName  ModelType       `json:"model_name"`
	Version    string          `json:"version"`
	Metrics    TrainingMetrics `json:"metrics"`
	DataPoints int             `json:"data_points"`
	TrainedAt  time.Time       `json:"trained_at"`
}

// TrainingResult reports the outcome of training a single model.
type TrainingResult struct {
	Success bool             `json:"success"`
	Version string           `json:"version,omitempty"`
	Metrics *TrainingMetrics `json:"metrics,omitempty"`
	Error   string           `json:"error,omitempty"`
	// Locked is set when another replica held the training lock.
	Locked bool `json:"-"`
}

// TrainAllResult isolates the outcome of each model in a retrain. Models
// not requested are omitted.
type TrainAllResult struct {
	GoldModel    *TrainingResult `json:"gold_model,omitempty"`
	DiamondModel *TrainingResult `json:"diamond_model,omitempty"`
	Errors       []string        `json:"errors"`
}

// Succeeded reports whether every requested model trained.
func (r *TrainAllResult) Succeeded() bool {
	return len(r.Errors) == 0
}

// ModelStatus never exposes fitted parameters.
type ModelStatus struct {
	IsTrained    bool       `json:"is_trained"`
	LastTrained  *time.Time `json:"last_trained,omitempty"`
	ModelVersion string     `json:"model_version,omitempty"`
}

type ModelsStatus struct {
	GoldModel    ModelStatus `json:"gold_model"`
	DiamondModel ModelStatus `json:"diamond_model"`
}

// ModelEventTrained is emitted after an artifact has been durably stored.
const ModelEventTrained = "model.trained"

// ModelEvent notifies other replicas that a new artifact is available.
type ModelEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ModelType ModelType `json:"model_type"`
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
}

// JobStatus is the lifecycle state of an asynchronous retrain.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// RetrainJob tracks one asynchronous retrain request.
type RetrainJob struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Status    JobStatus       `json:"status"`
	Result    *TrainAllResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
