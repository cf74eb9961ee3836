package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/repository"
	"JewelForecast/internal/service/ratelimit"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/ml"
	"JewelForecast/internal/usecase"
	"JewelForecast/pkg/cache"
	xhttp "JewelForecast/pkg/http"
	"JewelForecast/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
)

type testAPI struct {
	server *xhttp.Server
	prices *repository.MemoryPriceStore
}

func newTestAPI(t *testing.T, rl *ratelimit.Limiter) *testAPI {
	t.Helper()
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore()
	artifacts := repository.NewFileArtifactStore(t.TempDir())
	store := cache.NewMemoryCache()
	t.Cleanup(func() { store.Close() })

	forest := ml.DefaultForestConfig()
	forest.Trees = 10
	trainer := usecase.NewTrainingOrchestrator(prices, prices, artifacts, repository.NewMemoryTrainingLog(), usecase.WithForest(forest))
	serving := usecase.NewModelServing(ctx, artifacts)

	q := queue.NewMemoryQueue(nil, nil)
	jobs := usecase.NewRetrainJobs(trainer, serving, q, store, nil)
	q.RegisterJob(jobs)
	if err := q.Start(); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	trends := usecase.NewPriceTrendsUseCase(prices, store, time.Minute, nil)
	pricing := NewPricingEchoHandler(nil, serving, trainer, jobs, trends, rl)
	health := NewHealthEchoHandler(serving.Status, map[string]HealthCheck{"storage": prices.Health})

	reg := prometheus.NewRegistry()
	s := xhttp.NewServer(nil, []xhttp.Handler{pricing, health}, xhttp.WithMetrics("/metrics", reg, reg))
	return &testAPI{server: s, prices: prices}
}

func (a *testAPI) seed(t *testing.T, goldN, diamondN int) {
	t.Helper()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(3))
	start := time.Now().UTC().AddDate(0, 0, -goldN).Truncate(24 * time.Hour)
	gold := make([]models.PricePoint, goldN)
	for i := range gold {
		gold[i] = models.PricePoint{Date: start.AddDate(0, 0, i), PricePerGram: 6500 + 5*float64(i) + rng.Float64()*30}
	}
	if err := a.prices.InsertGoldPrices(ctx, "gold", "22K", gold); err != nil {
		t.Fatalf("seed gold: %v", err)
	}
	diamonds := make([]models.DiamondSample, diamondN)
	for i := range diamonds {
		carat := 0.3 + rng.Float64()*2
		diamonds[i] = models.DiamondSample{
			Carat:   carat,
			Cut:     features.Cuts[i%len(features.Cuts)],
			Color:   features.Colors[i%len(features.Colors)],
			Clarity: features.Clarities[i%len(features.Clarities)],
			Price:   150000*carat + rng.Float64()*10000,
		}
	}
	if err := a.prices.InsertDiamondSamples(ctx, diamonds); err != nil {
		t.Fatalf("seed diamonds: %v", err)
	}
}

func (a *testAPI) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.server.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Status int `json:"status"`
		Data   T   `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env.Data
}

func TestPredictBeforeTrainingIsUnavailable(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(http.MethodGet, "/api/v1/predict/gold?date=2030-01-01", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("missing Retry-After: %v", rec.Header())
	}
	rec = a.do(http.MethodGet, "/api/v1/models/diamond/importance", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("importance status %d", rec.Code)
	}
}

func TestPredictValidation(t *testing.T) {
	a := newTestAPI(t, nil)
	tests := []struct {
		name, method, target, body string
		wantCode                   string
	}{
		{"missing date", http.MethodGet, "/api/v1/predict/gold", "", "ERR_REQUIRED"},
		{"bad date", http.MethodGet, "/api/v1/predict/gold?date=31-12-2030", "", "ERR_DATETIME"},
		{"bad weight", http.MethodGet, "/api/v1/predict/gold?date=2030-12-31&weight=heavy", "", "ERR_NUMERIC"},
		{"negative weight", http.MethodGet, "/api/v1/predict/gold?date=2030-12-31&weight=-2", "", "ERR_BAD_REQUEST"},
		{"bad cut", http.MethodPost, "/api/v1/predict/diamond", `{"carat":1,"cut":"Superb","color":"E","clarity":"VS1"}`, "ERR_INVALID_CATEGORY"},
		{"missing carat", http.MethodPost, "/api/v1/predict/diamond", `{"cut":"Ideal","color":"E","clarity":"VS1"}`, "ERR_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Fatalf("expected %s in %s", tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestRetrainInsufficientData(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seed(t, 10, 0)
	rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"gold"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"all"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[models.TrainAllResult](t, rec)
	if res.GoldModel.Success || res.DiamondModel.Success || len(res.Errors) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRetrainThenPredict(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seed(t, 60, 80)

	rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"all"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("retrain %d: %s", rec.Code, rec.Body.String())
	}

	date := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	rec = a.do(http.MethodGet, "/api/v1/predict/gold?date="+date+"&weight=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("predict gold %d: %s", rec.Code, rec.Body.String())
	}
	gold := decode[models.GoldPrediction](t, rec)
	if gold.TotalPrice == nil || *gold.WeightGrams != 5 || gold.Date != date {
		t.Fatalf("unexpected gold prediction %+v", gold)
	}

	rec = a.do(http.MethodPost, "/api/v1/predict/diamond", `{"carat":1.1,"cut":"Ideal","color":"E","clarity":"VS1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict diamond %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodGet, "/api/v1/models/status", "")
	st := decode[models.ModelsStatus](t, rec)
	if !st.GoldModel.IsTrained || !st.DiamondModel.IsTrained || st.GoldModel.ModelVersion == "" {
		t.Fatalf("status %+v", st)
	}
	if strings.Contains(rec.Body.String(), "coefficients") {
		t.Fatalf("status must not expose parameters: %s", rec.Body.String())
	}

	rec = a.do(http.MethodGet, "/api/v1/models/history?model=gold", "")
	hist := decode[xhttp.ListDataResponse](t, rec)
	if rec.Code != http.StatusOK || hist.Total != 1 {
		t.Fatalf("history %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodGet, "/api/v1/models/versions?model=diamond", "")
	versions := decode[xhttp.ListDataResponse](t, rec)
	if rec.Code != http.StatusOK || versions.Total != 1 {
		t.Fatalf("versions %d: %s", rec.Code, rec.Body.String())
	}
	if rec = a.do(http.MethodGet, "/api/v1/models/versions?model=silver", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model versions %d", rec.Code)
	}

	rec = a.do(http.MethodGet, "/api/v1/prices/trends?days=30", "")
	trends := decode[models.PriceTrends](t, rec)
	if rec.Code != http.StatusOK || len(trends.Prices) == 0 || trends.Statistics.Current == 0 {
		t.Fatalf("trends %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAsyncRetrainJob(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seed(t, 40, 0)

	rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"gold","async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	job := decode[models.RetrainJob](t, rec)
	if rec.Header().Get("Location") != "/api/v1/models/retrain/"+job.ID {
		t.Fatalf("location: %s", rec.Header().Get("Location"))
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		rec = a.do(http.MethodGet, "/api/v1/models/retrain/"+job.ID, "")
		got := decode[models.RetrainJob](t, rec)
		if got.Status == models.JobSucceeded {
			break
		}
		if got.Status == models.JobFailed || time.Now().After(deadline) {
			t.Fatalf("job did not succeed: %s", rec.Body.String())
		}
		time.Sleep(20 * time.Millisecond)
	}

	rec = a.do(http.MethodGet, "/api/v1/predict/gold?date=2031-01-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("serving should reload after the job: %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodGet, "/api/v1/models/retrain/6f1c0c2e-3d4b-4a51-9d0e-0c6a0e7e9b11", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job %d", rec.Code)
	}
	rec = a.do(http.MethodGet, "/api/v1/models/retrain/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed job id %d", rec.Code)
	}
}

func TestRetrainThrottled(t *testing.T) {
	a := newTestAPI(t, ratelimit.PerMinute(1, 1))
	a.seed(t, 10, 0)
	if rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"gold"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("first call %d", rec.Code)
	}
	rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"gold"}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	if rec := a.do(http.MethodPost, "/api/v1/models/retrain", `{"model":"silver"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[HealthResponse](t, rec)
	if res.Status != "ok" || res.Checks["storage"] != "ok" || res.Models.GoldModel.IsTrained {
		t.Fatalf("unexpected health %+v", res)
	}
}
