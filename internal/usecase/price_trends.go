package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"JewelForecast/internal/domain/models"
	domrepo "JewelForecast/internal/domain/repository"
	"JewelForecast/pkg/cache"
	"JewelForecast/pkg/logger"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PriceTrendsUseCase serves recent gold quotes with summary statistics.
type PriceTrendsUseCase struct {
	source domrepo.GoldPriceSource
	cache  cache.Service
	ttl    time.Duration
	l      *logger.Logger
	now    func() time.Time
}

func NewPriceTrendsUseCase(source domrepo.GoldPriceSource, c cache.Service, ttl time.Duration, l *logger.Logger) *PriceTrendsUseCase {
	if l == nil {
		l = logger.Nop()
	}
	return &PriceTrendsUseCase{source: source, cache: c, ttl: ttl, l: l, now: time.Now}
}

type GetTrendsParams struct {
	Metal  string
	Purity string
	Days   int
}

func (uc *PriceTrendsUseCase) GetTrends(ctx context.Context, p GetTrendsParams) (*models.PriceTrends, error) {
	if p.Metal == "" {
		return nil, fmt.Errorf("%w: metal required", models.ErrInputValidation)
	}
	if p.Days <= 0 {
		p.Days = 30
	}
	if p.Days > 3650 {
		p.Days = 3650
	}

	key := cache.Key("trends", p.Metal, p.Purity, strconv.Itoa(p.Days))
	if uc.cache != nil {
		var cached models.PriceTrends
		err := uc.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.l.Warn("trends cache read", logger.String("key", key), logger.Error(err))
		}
	}

	to := uc.now().UTC()
	from := to.AddDate(0, 0, -p.Days)
	prices, err := uc.source.GoldPrices(ctx, p.Metal, p.Purity, from, to)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	if prices == nil {
		prices = []models.PricePoint{}
	}
	out := &models.PriceTrends{
		Metal:      p.Metal,
		Purity:     p.Purity,
		Days:       p.Days,
		Prices:     prices,
		Statistics: Statistics(prices),
	}

	if uc.cache != nil && uc.ttl > 0 {
		if err := uc.cache.Set(ctx, key, out, uc.ttl); err != nil {
			uc.l.Warn("trends cache write", logger.String("key", key), logger.Error(err))
		}
	}
	return out, nil
}

// Invalidate drops cached trends, typically after new prices are loaded.
func (uc *PriceTrendsUseCase) Invalidate(ctx context.Context) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.DeleteByPattern(ctx, cache.Key("trends", "*"))
}

// Statistics summarises prices ordered by date. Volatility is the sample
// standard deviation of daily percent changes.
func Statistics(prices []models.PricePoint) models.PriceStatistics {
	if len(prices) == 0 {
		return models.PriceStatistics{}
	}
	v := make([]float64, len(prices))
	for i, p := range prices {
		v[i] = p.PricePerGram
	}
	first, last := v[0], v[len(v)-1]
	st := models.PriceStatistics{
		Current: last,
		Average: stat.Mean(v, nil),
		Min:     floats.Min(v),
		Max:     floats.Max(v),
		Change:  last - first,
	}
	if first != 0 {
		st.ChangePct = (last - first) / first * 100
	}
	var returns []float64
	for i := 1; i < len(v); i++ {
		if v[i-1] != 0 {
			returns = append(returns, (v[i]-v[i-1])/v[i-1]*100)
		}
	}
	if len(returns) > 1 {
		st.Volatility = stat.StdDev(returns, nil)
	}
	return st
}
