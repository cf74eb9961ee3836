package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/domain/repository"
	"JewelForecast/pkg/logger"
)

const insertChunkSize = 2000

// SQLPriceStore keeps gold and diamond history in ClickHouse or DuckDB.
type SQLPriceStore struct {
	db      *sql.DB
	dialect Dialect
	l       *logger.Logger
}

var _ repository.PriceStore = (*SQLPriceStore)(nil)

func NewSQLPriceStore(db *sql.DB, dialect Dialect) *SQLPriceStore {
	return &SQLPriceStore{db: db, dialect: dialect, l: logger.Nop()}
}

func (s *SQLPriceStore) SetLogger(l *logger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Init creates the tables when missing.
func (s *SQLPriceStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", s.dialect.Name, err)
		}
	}
	s.l.Info("price store schema ready", logger.String("dialect", s.dialect.Name))
	return nil
}

func (s *SQLPriceStore) GoldPrices(ctx context.Context, metal, purity string, from, to time.Time) ([]models.PricePoint, error) {
	where := []string{"metal = ?", "purity = ?"}
	args := []any{metal, purity}
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, to)
	}
	q := fmt.Sprintf("SELECT date, price_per_gram FROM %s WHERE %s ORDER BY date ASC",
		s.dialect.table("gold_prices"), strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query gold prices: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.PricePerGram); err != nil {
			return nil, fmt.Errorf("scan gold price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLPriceStore) DiamondSamples(ctx context.Context) ([]models.DiamondSample, error) {
	q := fmt.Sprintf("SELECT carat, cut, color, clarity, price FROM %s", s.dialect.table("diamond_prices"))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query diamond prices: %w", err)
	}
	defer rows.Close()

	var out []models.DiamondSample
	for rows.Next() {
		var d models.DiamondSample
		if err := rows.Scan(&d.Carat, &d.Cut, &d.Color, &d.Clarity, &d.Price); err != nil {
			return nil, fmt.Errorf("scan diamond price: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLPriceStore) InsertGoldPrices(ctx context.Context, metal, purity string, points []models.PricePoint) error {
	cols := "(metal, purity, date, price_per_gram)"
	return s.insertChunked(ctx, "gold_prices", cols, len(points), func(i int) []any {
		p := points[i]
		return []any{metal, purity, p.Date, p.PricePerGram}
	})
}

func (s *SQLPriceStore) InsertDiamondSamples(ctx context.Context, samples []models.DiamondSample) error {
	cols := "(carat, cut, color, clarity, price)"
	return s.insertChunked(ctx, "diamond_prices", cols, len(samples), func(i int) []any {
		d := samples[i]
		return []any{d.Carat, d.Cut, d.Color, d.Clarity, d.Price}
	})
}

// insertChunked batches rows into multi-row VALUES statements.
func (s *SQLPriceStore) insertChunked(ctx context.Context, table, cols string, n int, row func(int) []any) error {
	return insertChunked(ctx, s.db, s.dialect.table(table), cols, n, row)
}

func insertChunked(ctx context.Context, db *sql.DB, table, cols string, n int, row func(int) []any) error {
	for start := 0; start < n; start += insertChunkSize {
		end := min(start+insertChunkSize, n)
		values := make([]string, 0, end-start)
		var args []any
		for i := start; i < end; i++ {
			r := row(i)
			values = append(values, "("+strings.TrimSuffix(strings.Repeat("?, ", len(r)), ", ")+")")
			args = append(args, r...)
		}
		q := fmt.Sprintf("INSERT INTO %s %s VALUES %s", table, cols, strings.Join(values, ","))
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLPriceStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
