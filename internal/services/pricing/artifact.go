package pricing

import (
	"encoding/json"
	"fmt"
	"time"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/services/features"
	"JewelForecast/internal/services/ml"
)

// SchemaVersion is bumped on any incompatible change to Artifact.
const SchemaVersion = 1

const versionLayout = "20060102T150405.000000000Z"

// Version names an artifact after its training time. Versions sort
// lexically in training order.
func Version(trainedAt time.Time) string {
	return trainedAt.UTC().Format(versionLayout)
}

// Artifact is the self-describing persisted form of a trained model.
type Artifact struct {
	SchemaVersion int                    `json:"schema_version"`
	ModelType     models.ModelType       `json:"model_type"`
	TrainedAt     time.Time              `json:"trained_at"`
	Metrics       models.TrainingMetrics `json:"metrics"`
	Gold          *GoldParams            `json:"gold,omitempty"`
	Diamond       *DiamondParams         `json:"diamond,omitempty"`
}

type GoldParams struct {
	FeatureNames []string            `json:"feature_names"`
	Coefficients []float64           `json:"coefficients"`
	Intercept    float64             `json:"intercept"`
	ScalerMean   []float64           `json:"scaler_mean"`
	ScalerScale  []float64           `json:"scaler_scale"`
	Context      []models.PricePoint `json:"context"`
}

type DiamondParams struct {
	FeatureNames []string                 `json:"feature_names"`
	Encoders     features.DiamondEncoders `json:"encoders"`
	Forest       ml.RandomForest          `json:"forest"`
}

// Artifact exports the trained state of the gold model.
func (m *GoldPriceModel) Artifact() (*Artifact, error) {
	if !m.IsTrained() {
		return nil, models.ErrModelNotTrained
	}
	return &Artifact{
		SchemaVersion: SchemaVersion,
		ModelType:     models.ModelGold,
		TrainedAt:     m.trainedAt,
		Metrics:       m.metrics,
		Gold: &GoldParams{
			FeatureNames: features.GoldFeatureNames[:],
			Coefficients: m.reg.Coef,
			Intercept:    m.reg.Intercept,
			ScalerMean:   m.scaler.Mean,
			ScalerScale:  m.scaler.Scale,
			Context:      m.context,
		},
	}, nil
}

// Artifact exports the trained state of the diamond model.
func (m *DiamondPriceModel) Artifact() (*Artifact, error) {
	if !m.IsTrained() {
		return nil, models.ErrModelNotTrained
	}
	return &Artifact{
		SchemaVersion: SchemaVersion,
		ModelType:     models.ModelDiamond,
		TrainedAt:     m.trainedAt,
		Metrics:       m.metrics,
		Diamond: &DiamondParams{
			FeatureNames: features.DiamondFeatureNames[:],
			Encoders:     m.encoders,
			Forest:       *m.forest,
		},
	}, nil
}

func MarshalArtifact(a *Artifact) ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return b, nil
}

// UnmarshalArtifact decodes and checks the schema version and model type.
func UnmarshalArtifact(data []byte, want models.ModelType) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("artifact schema version %d, want %d", a.SchemaVersion, SchemaVersion)
	}
	if a.ModelType != want {
		return nil, fmt.Errorf("artifact holds %q model, want %q", a.ModelType, want)
	}
	return &a, nil
}

// LoadGold rebuilds a trained gold model from its artifact.
func LoadGold(a *Artifact) (*GoldPriceModel, error) {
	g := a.Gold
	if a.ModelType != models.ModelGold || g == nil {
		return nil, fmt.Errorf("load gold: missing gold parameters")
	}
	n := int(features.GoldFeatureCount)
	if len(g.Coefficients) != n || len(g.ScalerMean) != n || len(g.ScalerScale) != n {
		return nil, fmt.Errorf("load gold: expected %d features", n)
	}
	if len(g.Context) == 0 {
		return nil, fmt.Errorf("load gold: empty prediction context")
	}
	return &GoldPriceModel{
		scaler:    &ml.StandardScaler{Mean: g.ScalerMean, Scale: g.ScalerScale},
		reg:       &ml.LinearRegression{Coef: g.Coefficients, Intercept: g.Intercept},
		context:   g.Context,
		metrics:   a.Metrics,
		trainedAt: a.TrainedAt,
	}, nil
}

// LoadDiamond rebuilds a trained diamond model from its artifact.
func LoadDiamond(a *Artifact) (*DiamondPriceModel, error) {
	d := a.Diamond
	if a.ModelType != models.ModelDiamond || d == nil {
		return nil, fmt.Errorf("load diamond: missing diamond parameters")
	}
	if len(d.Forest.Trees) == 0 || d.Forest.Features != len(features.DiamondFeatureNames) || len(d.Forest.Importances) != d.Forest.Features {
		return nil, fmt.Errorf("load diamond: malformed forest")
	}
	for i, t := range d.Forest.Trees {
		if err := checkTree(t); err != nil {
			return nil, fmt.Errorf("load diamond: tree %d: %w", i, err)
		}
	}
	forest := d.Forest
	return &DiamondPriceModel{
		cfg:       ml.DefaultForestConfig(),
		forest:    &forest,
		encoders:  d.Encoders,
		metrics:   a.Metrics,
		trainedAt: a.TrainedAt,
	}, nil
}

// checkTree rejects node tables that would index out of range or loop.
func checkTree(t ml.RegressionTree) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= len(features.DiamondFeatureNames) {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: bad child index", i)
		}
	}
	return nil
}
