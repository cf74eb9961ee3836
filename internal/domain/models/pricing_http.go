package models

// Requests for pricing HTTP endpoints. Defined in domain for consistency and reuse.

type GoldPredictRequest struct {
	Date   string `query:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Weight string `query:"weight" json:"weight" validate:"omitempty,numeric"`
}

type DiamondPredictRequest struct {
	Carat   float64 `json:"carat" validate:"required"`
	Cut     string  `json:"cut" validate:"required"`
	Color   string  `json:"color" validate:"required"`
	Clarity string  `json:"clarity" validate:"required"`
}

type RetrainRequest struct {
	Model string `json:"model" default:"all" validate:"oneof=gold diamond all"`
	Async bool   `json:"async"`
}

type RetrainJobRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

type HistoryRequest struct {
	Model string `query:"model" json:"model" validate:"omitempty,oneof=gold diamond"`
	Limit int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type VersionsRequest struct {
	Model string `query:"model" json:"model" validate:"required,oneof=gold diamond"`
}

type TrendsRequest struct {
	Days   int    `query:"days" json:"days" default:"30" validate:"gte=1,lte=3650"`
	Metal  string `query:"metal" json:"metal" default:"gold" validate:"required"`
	Purity string `query:"purity" json:"purity" default:"22K"`
}
