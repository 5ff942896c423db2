package tcga

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

const (
	SubtypeModelFile  = "subtype.yaml"
	SurvivalModelFile = "survival.yaml"
	ScalerFile        = "scaler.yaml"
	FeaturesFile      = "features.yaml"

	defaultRaceCategory = 3
	highRiskThreshold   = 0.5
)

var (
	// ErrNotLoaded is returned when neither model artifact could be loaded.
	ErrNotLoaded = errors.New("models not loaded")

	// DefaultFeatureOrder is the column order the models were exported with.
	DefaultFeatureOrder = []string{
		"Mutation Count",
		"Fraction Genome Altered",
		"Diagnosis Age",
		"MSI MANTIS Score",
		"MSIsensor Score",
		"Race Category",
	}

	subtypeLabels = map[int]string{
		0: "POLE",
		1: "MSI",
		2: "CN_LOW",
		3: "CN_HIGH",
	}

	survivalLabels = map[int]string{
		0: "Living",
		1: "Deceased",
	}
)

// Input is a TCGA clinical/genomic sample. Missing values decode as zero.
type Input struct {
	MutationCount         float64 `json:"mutationCount" yaml:"mutationCount"`
	FractionGenomeAltered float64 `json:"fractionGenomeAltered" yaml:"fractionGenomeAltered"`
	DiagnosisAge          float64 `json:"diagnosisAge" yaml:"diagnosisAge"`
	MSIMantisScore        float64 `json:"msiMantisScore" yaml:"msiMantisScore"`
	MSISensorScore        float64 `json:"msiSensorScore" yaml:"msiSensorScore"`
	RaceCategory          *int    `json:"raceCategory,omitempty" yaml:"raceCategory,omitempty"`
}

type SubtypeResult struct {
	PredictedClass string   `json:"predicted_class,omitempty" yaml:"predicted_class,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type SurvivalResult struct {
	Prediction          string   `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	SurvivalProbability *float64 `json:"survival_probability,omitempty" yaml:"survival_probability,omitempty"`
	RiskCategory        string   `json:"risk_category,omitempty" yaml:"risk_category,omitempty"`
	Error               string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type Result struct {
	MolecularSubtype SubtypeResult  `json:"molecular_subtype" yaml:"molecular_subtype"`
	Survival         SurvivalResult `json:"survival" yaml:"survival"`
}

// Status reports which artifacts are available.
type Status struct {
	SubtypeLoaded  bool `json:"subtype_loaded" yaml:"subtype_loaded"`
	SurvivalLoaded bool `json:"survival_loaded" yaml:"survival_loaded"`
	ScalerLoaded   bool `json:"scaler_loaded" yaml:"scaler_loaded"`
	Features       int  `json:"features" yaml:"features"`
}

// Predictor holds the loaded artifacts. It is built once and never
// modified, so it is safe for concurrent use.
type Predictor struct {
	subtype  *LinearModel
	survival *LinearModel
	scaler   *Scaler
	features []string
}

// NewPredictor assembles a predictor from already loaded artifacts. Any of
// them may be nil.
func NewPredictor(subtype, survival *LinearModel, scaler *Scaler, features []string) *Predictor {
	return &Predictor{
		subtype:  subtype,
		survival: survival,
		scaler:   scaler,
		features: features,
	}
}

// Load reads every artifact found in dir. Missing files are logged and
// leave the matching capability unavailable; malformed files are errors.
func Load(dir string) (*Predictor, error) {
	p := &Predictor{}

	var err error
	if p.subtype, err = loadOptional(dir, SubtypeModelFile, LoadLinearModel); err != nil {
		return nil, err
	}
	if p.survival, err = loadOptional(dir, SurvivalModelFile, LoadLinearModel); err != nil {
		return nil, err
	}
	if p.scaler, err = loadOptional(dir, ScalerFile, LoadScaler); err != nil {
		return nil, err
	}

	names, err := loadOptional(dir, FeaturesFile, func(path string) (*[]string, error) {
		n, err := LoadFeatureNames(path)
		return &n, err
	})
	if err != nil {
		return nil, err
	}
	if names != nil {
		p.features = *names
	}

	slog.Info("tcga models loaded",
		"dir", dir,
		"subtype", p.subtype != nil,
		"survival", p.survival != nil,
		"scaler", p.scaler != nil,
		"features", len(p.features))

	return p, nil
}

func loadOptional[T any](dir, name string, load func(string) (*T, error)) (*T, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("tcga artifact not found", "path", path)
		return nil, nil
	}
	v, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return v, nil
}

// Status reports which artifacts were loaded.
func (p *Predictor) Status() Status {
	return Status{
		SubtypeLoaded:  p.subtype != nil,
		SurvivalLoaded: p.survival != nil,
		ScalerLoaded:   p.scaler != nil,
		Features:       len(p.Columns()),
	}
}

// Columns returns the model input order.
func (p *Predictor) Columns() []string {
	if len(p.features) > 0 {
		return p.features
	}
	return DefaultFeatureOrder
}

// Vector lays out the input in model column order. Columns the input does not
// provide are zero.
func (p *Predictor) Vector(in Input) []float64 {
	race := defaultRaceCategory
	if in.RaceCategory != nil {
		race = *in.RaceCategory
	}

	known := map[string]float64{
		"Mutation Count":          in.MutationCount,
		"Fraction Genome Altered": in.FractionGenomeAltered,
		"Diagnosis Age":           in.DiagnosisAge,
		"MSI MANTIS Score":        in.MSIMantisScore,
		"MSIsensor Score":         in.MSISensorScore,
		"Race Category":           float64(race),
	}

	cols := p.Columns()
	x := make([]float64, len(cols))
	for i, c := range cols {
		x[i] = known[c]
	}
	return x
}

// Predict runs both models on in. A model that is not loaded yields an
// error message in its section instead of failing the whole call.
func (p *Predictor) Predict(in Input) (*Result, error) {
	if p.subtype == nil && p.survival == nil {
		return nil, ErrNotLoaded
	}

	x := p.Vector(in)
	if p.scaler != nil {
		var err error
		if x, err = p.scaler.Transform(x); err != nil {
			return nil, fmt.Errorf("scaling input: %w", err)
		}
	}

	res := &Result{}

	if p.subtype != nil {
		class, proba, err := p.subtype.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("subtype prediction: %w", err)
		}
		label, ok := subtypeLabels[class]
		if !ok {
			label = strconv.Itoa(class)
		}
		confidence := floats.Max(proba)
		res.MolecularSubtype = SubtypeResult{
			PredictedClass: label,
			Confidence:     &confidence,
		}
	} else {
		res.MolecularSubtype = SubtypeResult{Error: "Subtype model not loaded"}
	}

	if p.survival != nil {
		class, proba, err := p.survival.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("survival prediction: %w", err)
		}
		label, ok := survivalLabels[class]
		if !ok {
			label = "Unknown"
		}
		deceased := proba[1]
		risk := "Low Risk"
		if deceased > highRiskThreshold {
			risk = "High Risk"
		}
		living := 1 - deceased
		res.Survival = SurvivalResult{
			Prediction:          label,
			SurvivalProbability: &living,
			RiskCategory:        risk,
		}
	} else {
		res.Survival = SurvivalResult{Error: "Survival model not loaded"}
	}

	return res, nil
}
