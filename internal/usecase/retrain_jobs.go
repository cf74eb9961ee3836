package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/pkg/cache"
	"JewelForecast/pkg/logger"
	"JewelForecast/pkg/queue"

	"github.com/google/uuid"
)

// RetrainJobType routes retrain messages on the job queue.
const RetrainJobType = "model.retrain"

const defaultJobTTL = 24 * time.Hour

type retrainPayload struct {
	JobID string `json:"job_id"`
	Model string `json:"model"`
}

// Reloader swaps in the latest artifacts after a retrain.
type Reloader interface {
	Reload(ctx context.Context) error
}

// RetrainJobs runs retrains either inline or through the job queue. Job
// state lives in the cache so any replica can answer a status poll.
type RetrainJobs struct {
	trainer *TrainingOrchestrator
	serving Reloader
	queue   queue.QueueService
	store   cache.Service
	ttl     time.Duration
	l       *logger.Logger
	now     func() time.Time
}

func NewRetrainJobs(trainer *TrainingOrchestrator, serving Reloader, q queue.QueueService, store cache.Service, l *logger.Logger) *RetrainJobs {
	if l == nil {
		l = logger.Nop()
	}
	return &RetrainJobs{
		trainer: trainer,
		serving: serving,
		queue:   q,
		store:   store,
		ttl:     defaultJobTTL,
		l:       l,
		now:     time.Now,
	}
}

func (j *RetrainJobs) Name() string { return "retrain" }
func (j *RetrainJobs) Type() string { return RetrainJobType }

// RunNow retrains synchronously and reloads serving when anything trained.
func (j *RetrainJobs) RunNow(ctx context.Context, model string) (*models.TrainAllResult, error) {
	res, err := j.trainer.Retrain(ctx, model)
	if err != nil {
		return nil, err
	}
	j.reloadAfter(ctx, res)
	return res, nil
}

// RunModel trains one model synchronously, reloading serving on success.
// Training errors are returned unchanged.
func (j *RetrainJobs) RunModel(ctx context.Context, model models.ModelType) (*models.TrainingLogEntry, error) {
	entry, err := j.trainer.Train(ctx, model)
	if err != nil {
		return nil, err
	}
	j.reload(ctx)
	return entry, nil
}

// Submit records a queued job and enqueues it.
func (j *RetrainJobs) Submit(ctx context.Context, model string) (*models.RetrainJob, error) {
	if model == "" {
		model = "all"
	}
	if model != "all" {
		if _, err := models.ParseModelType(model); err != nil {
			return nil, err
		}
	}
	now := j.now().UTC()
	job := &models.RetrainJob{
		ID:        uuid.NewString(),
		Model:     model,
		Status:    models.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := j.save(ctx, job); err != nil {
		return nil, err
	}
	if err := j.queue.PublishMessage(ctx, RetrainJobType, retrainPayload{JobID: job.ID, Model: model}); err != nil {
		job.Status, job.Error = models.JobFailed, err.Error()
		_ = j.save(context.WithoutCancel(ctx), job)
		return nil, fmt.Errorf("enqueue retrain: %w", err)
	}
	j.l.Info("retrain job queued", logger.String("job_id", job.ID), logger.String("model", model))
	return job, nil
}

// Get returns the current state of a job.
func (j *RetrainJobs) Get(ctx context.Context, id string) (*models.RetrainJob, error) {
	var job models.RetrainJob
	err := j.store.Get(ctx, jobKey(id), &job)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

// Handle is the queue worker entry point. Only lock contention is returned
// as an error so the queue retries it later.
func (j *RetrainJobs) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[retrainPayload](payload)
	if err != nil {
		return err
	}
	job, err := j.Get(ctx, p.JobID)
	if err != nil {
		// status expired or was never written; run anyway
		now := j.now().UTC()
		job = &models.RetrainJob{ID: p.JobID, Model: p.Model, CreatedAt: now}
	}
	j.transition(ctx, job, models.JobRunning, nil, "")

	res, err := j.trainer.Retrain(ctx, p.Model)
	if err != nil {
		j.transition(ctx, job, models.JobFailed, nil, err.Error())
		return nil
	}
	if !anyTrained(res) && lockedOut(res) {
		j.transition(ctx, job, models.JobQueued, res, models.ErrTrainingInProgress.Error())
		return models.ErrTrainingInProgress
	}
	j.reloadAfter(ctx, res)

	if res.Succeeded() {
		j.transition(ctx, job, models.JobSucceeded, res, "")
	} else {
		j.transition(ctx, job, models.JobFailed, res, strings.Join(res.Errors, "; "))
	}
	return nil
}

func (j *RetrainJobs) transition(ctx context.Context, job *models.RetrainJob, status models.JobStatus, res *models.TrainAllResult, msg string) {
	job.Status, job.Result, job.Error = status, res, msg
	job.UpdatedAt = j.now().UTC()
	if err := j.save(context.WithoutCancel(ctx), job); err != nil {
		j.l.Warn("save job status", logger.String("job_id", job.ID), logger.Error(err))
	}
	j.l.Info("retrain job", logger.String("job_id", job.ID), logger.String("status", string(status)))
}

func (j *RetrainJobs) save(ctx context.Context, job *models.RetrainJob) error {
	if err := j.store.Set(ctx, jobKey(job.ID), job, j.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (j *RetrainJobs) reloadAfter(ctx context.Context, res *models.TrainAllResult) {
	if anyTrained(res) {
		j.reload(ctx)
	}
}

func (j *RetrainJobs) reload(ctx context.Context) {
	if j.serving == nil {
		return
	}
	if err := j.serving.Reload(ctx); err != nil {
		j.l.Error("reload after retrain", logger.Error(err))
	}
}

// lockedOut reports whether every failed model lost the training lock.
func lockedOut(res *models.TrainAllResult) bool {
	for _, r := range []*models.TrainingResult{res.GoldModel, res.DiamondModel} {
		if r != nil && !r.Success && !r.Locked {
			return false
		}
	}
	return true
}

func anyTrained(res *models.TrainAllResult) bool {
	return (res.GoldModel != nil && res.GoldModel.Success) || (res.DiamondModel != nil && res.DiamondModel.Success)
}

func jobKey(id string) string { return cache.Key("jobs", "retrain", id) }

var _ queue.Job = (*RetrainJobs)(nil)
