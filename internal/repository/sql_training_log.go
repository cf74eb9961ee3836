package repository

import (
	"context"
	"database/sql"
	"fmt"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/domain/repository"
)

// SQLTrainingLog appends training runs to model_training_logs.
type SQLTrainingLog struct {
	db      *sql.DB
	dialect Dialect
}

var _ repository.TrainingLogStore = (*SQLTrainingLog)(nil)

func NewSQLTrainingLog(db *sql.DB, dialect Dialect) *SQLTrainingLog {
	return &SQLTrainingLog{db: db, dialect: dialect}
}

func (s *SQLTrainingLog) Append(ctx context.Context, e models.TrainingLogEntry) error {
	cols := "(model_name, version, r2, rmse, mae, mape, data_points, trained_at)"
	return insertChunked(ctx, s.db, s.dialect.table("model_training_logs"), cols, 1, func(int) []any {
		return []any{
			string(e.ModelName), e.Version,
			e.Metrics.R2, e.Metrics.RMSE, e.Metrics.MAE, e.Metrics.MAPE,
			int64(e.DataPoints), e.TrainedAt.UTC(),
		}
	})
}

// History lists runs most recent first. An empty model lists every model.
func (s *SQLTrainingLog) History(ctx context.Context, model models.ModelType, limit int) ([]models.TrainingLogEntry, error) {
	q := fmt.Sprintf("SELECT model_name, version, r2, rmse, mae, mape, data_points, trained_at FROM %s",
		s.dialect.table("model_training_logs"))
	var args []any
	if model != "" {
		q += " WHERE model_name = ?"
		args = append(args, string(model))
	}
	q += " ORDER BY trained_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query training logs: %w", err)
	}
	defer rows.Close()

	var out []models.TrainingLogEntry
	for rows.Next() {
		var (
			e      models.TrainingLogEntry
			name   string
			points int64
		)
		if err := rows.Scan(&name, &e.Version, &e.Metrics.R2, &e.Metrics.RMSE, &e.Metrics.MAE, &e.Metrics.MAPE, &points, &e.TrainedAt); err != nil {
			return nil, fmt.Errorf("scan training log: %w", err)
		}
		e.ModelName = models.ModelType(name)
		e.DataPoints = int(points)
		e.Metrics.DataPoints = e.DataPoints
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLTrainingLog) Latest(ctx context.Context, model models.ModelType) (*models.TrainingLogEntry, error) {
	h, err := s.History(ctx, model, 1)
	if err != nil || len(h) == 0 {
		return nil, err
	}
	return &h[0], nil
}
