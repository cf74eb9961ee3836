package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"JewelForecast/internal/domain/models"
	domrepo "JewelForecast/internal/domain/repository"
	pkgkafka "JewelForecast/pkg/kafka"
	"JewelForecast/pkg/logger"
)

// ModelEventsHandler reloads the local model set when any replica reports a
// newly stored artifact.
type ModelEventsHandler struct {
	topic   string
	serving Reloader
	metrics domrepo.Metrics
	l       *logger.Logger
}

func NewModelEventsHandler(topic string, serving Reloader, metrics domrepo.Metrics, l *logger.Logger) *ModelEventsHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &ModelEventsHandler{topic: topic, serving: serving, metrics: metrics, l: l}
}

func (h *ModelEventsHandler) Topic() string { return h.topic }

func (h *ModelEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ModelEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("model_event_unmarshal")
		return fmt.Errorf("decode model event: %w", err)
	}
	if ev.Type != models.ModelEventTrained {
		h.l.Debug("ignoring model event", logger.String("type", ev.Type))
		return nil
	}
	if !ev.TrainedAt.IsZero() {
		h.metrics.RecordLatency("model_event_lag_seconds", time.Since(ev.TrainedAt).Seconds())
	}

	start := time.Now()
	err := h.serving.Reload(ctx)
	h.metrics.RecordLatency("model_reload_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("model_event_reload")
		return fmt.Errorf("reload after %s %s: %w", ev.ModelType, ev.Version, err)
	}
	h.l.Info("models reloaded from event",
		logger.String("model", string(ev.ModelType)),
		logger.String("version", ev.Version))
	return nil
}

var _ pkgkafka.MessageHandler = (*ModelEventsHandler)(nil)
