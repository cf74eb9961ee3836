package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type retrainPayload struct {
	JobID string `json:"job_id"`
	Model string `json:"model"`
}

type recordingJob struct {
	got   chan retrainPayload
	fails int32 // remaining failures before success
	calls int32
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "retrain" }

func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	atomic.AddInt32(&j.calls, 1)
	if atomic.AddInt32(&j.fails, -1) >= 0 {
		return errors.New("boom")
	}
	p, err := ParsePayload[retrainPayload](payload)
	if err != nil {
		return err
	}
	j.got <- *p
	return nil
}

func waitFor(t *testing.T, ch <-chan retrainPayload) retrainPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("job was not handled")
	}
	return retrainPayload{}
}

func stop(t *testing.T, r Runner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestMemoryQueueDeliversAndRetries(t *testing.T) {
	q := NewMemoryQueue(nil, &QueueConfig{Workers: 2, RetryLimit: 2, RetryDelay: time.Millisecond})
	job := &recordingJob{got: make(chan retrainPayload, 1), fails: 1}
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop(t, q)

	if err := q.PublishMessage(context.Background(), "retrain", retrainPayload{JobID: "j1", Model: "gold"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p := waitFor(t, job.got); p.JobID != "j1" || p.Model != "gold" {
		t.Fatalf("payload: %+v", p)
	}
	if atomic.LoadInt32(&job.calls) != 2 {
		t.Fatalf("expected one retry, calls=%d", job.calls)
	}
}

func TestMemoryQueueRejectsUnknownType(t *testing.T) {
	q := NewMemoryQueue(nil, nil)
	if err := q.PublishMessage(context.Background(), "retrain", nil); err == nil {
		t.Fatalf("expected error before start")
	}
	_ = q.Start()
	defer stop(t, q)
	if err := q.PublishMessage(context.Background(), "other", nil); err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}

func TestRedisQueueDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(nil, &QueueConfig{Workers: 1}, client, WithKeyPrefix("test:queue"))
	job := &recordingJob{got: make(chan retrainPayload, 1)}
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop(t, q)

	if err := q.PublishMessage(context.Background(), "retrain", retrainPayload{JobID: "j2", Model: "all"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p := waitFor(t, job.got); p.JobID != "j2" {
		t.Fatalf("payload: %+v", p)
	}
}

func TestRedisQueueRetryThenDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(nil, &QueueConfig{RetryLimit: 1, RetryDelay: time.Hour}, client, WithKeyPrefix("t"))
	job := &recordingJob{got: make(chan retrainPayload, 1), fails: 10}
	q.RegisterJob(job)

	msg, _ := newMessage("retrain", retrainPayload{JobID: "j3"})
	q.processMessage(msg)
	if n, _ := client.ZCard(context.Background(), "t:retry").Result(); n != 1 {
		t.Fatalf("expected scheduled retry, zcard=%d", n)
	}

	q.processRetryMessages(time.Now().Add(2 * time.Hour))
	if n, _ := client.LLen(context.Background(), "t:messages").Result(); n != 1 {
		t.Fatalf("due retry should be requeued, llen=%d", n)
	}

	msg.Attempts = 1
	q.processMessage(msg)
	if n, _ := client.LLen(context.Background(), "t:dlq").Result(); n != 1 {
		t.Fatalf("expected dead letter, llen=%d", n)
	}
}
