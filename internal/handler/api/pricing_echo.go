package api

import (
	"errors"
	"net/http"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/service/ratelimit"
	"JewelForecast/internal/usecase"
	xhttp "JewelForecast/pkg/http"
	xlogger "JewelForecast/pkg/logger"
	"JewelForecast/pkg/util"

	"github.com/labstack/echo/v4"
)

// unavailableRetryAfter is advertised while no trained model is loaded.
const unavailableRetryAfter = 30 * time.Second

// PricingEchoHandler serves predictions, model administration and price trends.
type PricingEchoHandler struct {
	logger  *xlogger.Logger
	serving *usecase.ModelServing
	trainer *usecase.TrainingOrchestrator
	jobs    *usecase.RetrainJobs
	trends  *usecase.PriceTrendsUseCase
	rl      *ratelimit.Limiter
}

func NewPricingEchoHandler(
	logger *xlogger.Logger,
	serving *usecase.ModelServing,
	trainer *usecase.TrainingOrchestrator,
	jobs *usecase.RetrainJobs,
	trends *usecase.PriceTrendsUseCase,
	rl *ratelimit.Limiter,
) *PricingEchoHandler {
	return &PricingEchoHandler{logger: logger, serving: serving, trainer: trainer, jobs: jobs, trends: trends, rl: rl}
}

func (h *PricingEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/predict/gold", h.PredictGold)
	g.POST("/predict/diamond", h.PredictDiamond)

	m := g.Group("/models")
	m.POST("/retrain", h.Retrain)
	m.GET("/retrain/:id", h.RetrainJob)
	m.GET("/status", h.Status)
	m.GET("/history", h.History)
	m.GET("/diamond/importance", h.Importance)
	m.GET("/versions", h.Versions)

	g.GET("/prices/trends", h.Trends)
}

func (h *PricingEchoHandler) PredictGold(c echo.Context) error {
	req := &models.GoldPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	weight, ok := util.ParseOptionalFloat(req.Weight)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_NUMERIC", "weight", "weight must be a number", http.StatusBadRequest))
	}

	res, err := h.serving.PredictGold(c.Request().Context(), req.Date, weight)
	if err != nil {
		return h.fail(c, "predict gold", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) PredictDiamond(c echo.Context) error {
	req := &models.DiamondPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.serving.PredictDiamond(c.Request().Context(), req.Carat, req.Cut, req.Color, req.Clarity)
	if err != nil {
		return h.fail(c, "predict diamond", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Retrain trains inline, or queues a job and answers 202 when async is set.
func (h *PricingEchoHandler) Retrain(c echo.Context) error {
	req := &models.RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.rl != nil {
		if ok, wait := h.rl.Allow("retrain:" + req.Model); !ok {
			h.logger.Warn("retrain throttled", xlogger.String("model", req.Model), xlogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("retrain requested too often").WithRetryAfter(wait))
		}
	}
	ctx := c.Request().Context()

	if req.Async {
		job, err := h.jobs.Submit(ctx, req.Model)
		if err != nil {
			return h.fail(c, "submit retrain", err)
		}
		c.Response().Header().Set(echo.HeaderLocation, "/api/v1/models/retrain/"+job.ID)
		return xhttp.AcceptedResponse(c, job)
	}

	if req.Model == "all" {
		res, err := h.jobs.RunNow(ctx, req.Model)
		if err != nil {
			return h.fail(c, "retrain", err)
		}
		return xhttp.SuccessResponse(c, res)
	}
	mt, err := models.ParseModelType(req.Model)
	if err != nil {
		return h.fail(c, "retrain", err)
	}
	entry, err := h.jobs.RunModel(ctx, mt)
	if err != nil {
		return h.fail(c, "retrain "+req.Model, err)
	}
	return xhttp.SuccessResponse(c, models.TrainingResult{Success: true, Version: entry.Version, Metrics: &entry.Metrics})
}

func (h *PricingEchoHandler) RetrainJob(c echo.Context) error {
	req := &models.RetrainJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "retrain job", err)
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *PricingEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.serving.Status())
}

func (h *PricingEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entries, err := h.trainer.TrainingHistory(c.Request().Context(), models.ModelType(req.Model), req.Limit)
	if err != nil {
		return h.fail(c, "training history", err)
	}
	if entries == nil {
		entries = []models.TrainingLogEntry{}
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *PricingEchoHandler) Importance(c echo.Context) error {
	imp, err := h.serving.FeatureImportance(c.Request().Context())
	if err != nil {
		return h.fail(c, "feature importance", err)
	}
	return xhttp.SuccessResponse(c, imp)
}

// Versions lists stored artifact versions of one model, oldest first.
func (h *PricingEchoHandler) Versions(c echo.Context) error {
	req := &models.VersionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	versions, err := h.serving.Versions(c.Request().Context(), models.ModelType(req.Model))
	if err != nil {
		return h.fail(c, "model versions", err)
	}
	if versions == nil {
		versions = []string{}
	}
	return xhttp.ListResponse(c, versions, int64(len(versions)))
}

func (h *PricingEchoHandler) Trends(c echo.Context) error {
	req := &models.TrendsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.trends.GetTrends(c.Request().Context(), usecase.GetTrendsParams{
		Metal:  req.Metal,
		Purity: req.Purity,
		Days:   req.Days,
	})
	if err != nil {
		return h.fail(c, "price trends", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusServiceUnavailable {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain failures onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var ice *models.InvalidCategoryError
	var ide *models.InsufficientDataError
	switch {
	case errors.As(err, &ice):
		return xhttp.NewAppError("ERR_INVALID_CATEGORY", ice.Field, ice.Error(), http.StatusBadRequest).
			WithParam("allowed", ice.Allowed)
	case errors.Is(err, models.ErrInputValidation):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrCategoryEncoding):
		return xhttp.NewAppError("ERR_CATEGORY_ENCODING", "", err.Error(), http.StatusBadRequest)
	case errors.As(err, &ide):
		return xhttp.UnprocessableError(err.Error()).
			WithParam("required", ide.Required).
			WithParam("got", ide.Got)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError(err.Error())
	case errors.Is(err, models.ErrServiceUnavailable):
		return xhttp.ServiceUnavailableError("model not trained yet").WithRetryAfter(unavailableRetryAfter)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, models.ErrJobNotFound):
		return xhttp.NotFoundError(err.Error())
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
