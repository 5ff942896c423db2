package tcga

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LinearModel is an exported linear classifier. One coefficient row is a
// binary logistic model; K rows are a multinomial softmax over K classes.
type LinearModel struct {
	Name         string      `yaml:"name"`
	Classes      []int       `yaml:"classes"`
	Intercepts   []float64   `yaml:"intercepts"`
	Coefficients [][]float64 `yaml:"coefficients"`

	weights *mat.Dense
	bias    *mat.VecDense
}

// Scaler standardizes features as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// LoadLinearModel reads and validates a model artifact.
func LoadLinearModel(path string) (*LinearModel, error) {
	var m LinearModel
	if err := readYAML(path, &m); err != nil {
		return nil, err
	}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &m, nil
}

// NewLinearModel builds a model from in-memory parameters. Classes may be
// nil for 0..K-1.
func NewLinearModel(name string, classes []int, intercepts []float64, coefficients [][]float64) (*LinearModel, error) {
	m := &LinearModel{
		Name:         name,
		Classes:      classes,
		Intercepts:   intercepts,
		Coefficients: coefficients,
	}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", name, err)
	}
	return m, nil
}

func (m *LinearModel) init() error {
	rows := len(m.Coefficients)
	if rows == 0 {
		return errors.New("no coefficients")
	}
	cols := len(m.Coefficients[0])
	if cols == 0 {
		return errors.New("empty coefficient row")
	}
	if len(m.Intercepts) != rows {
		return fmt.Errorf("%d intercepts for %d coefficient rows", len(m.Intercepts), rows)
	}

	wantClasses := rows
	if rows == 1 {
		wantClasses = 2
	}
	if len(m.Classes) == 0 {
		m.Classes = make([]int, wantClasses)
		for i := range m.Classes {
			m.Classes[i] = i
		}
	}
	if len(m.Classes) != wantClasses {
		return fmt.Errorf("%d classes for %d coefficient rows", len(m.Classes), rows)
	}

	data := make([]float64, 0, rows*cols)
	for i, row := range m.Coefficients {
		if len(row) != cols {
			return fmt.Errorf("coefficient row %d has %d values, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	m.weights = mat.NewDense(rows, cols, data)
	m.bias = mat.NewVecDense(rows, append([]float64(nil), m.Intercepts...))
	return nil
}

// NumFeatures is the input width of the model.
func (m *LinearModel) NumFeatures() int {
	_, c := m.weights.Dims()
	return c
}

// PredictProba returns class probabilities in Classes order.
func (m *LinearModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.NumFeatures() {
		return nil, fmt.Errorf("model %s expects %d features, got %d", m.Name, m.NumFeatures(), len(x))
	}

	var z mat.VecDense
	z.MulVec(m.weights, mat.NewVecDense(len(x), x))
	z.AddVec(&z, m.bias)
	logits := z.RawVector().Data

	if len(logits) == 1 {
		p := sigmoid(logits[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(logits), nil
}

// Predict returns the most probable class and the full distribution.
func (m *LinearModel) Predict(x []float64) (int, []float64, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, nil, err
	}
	return m.Classes[floats.MaxIdx(proba)], proba, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softmax(z []float64) []float64 {
	out := make([]float64, len(z))
	copy(out, z)
	floats.AddConst(-floats.Max(out), out)
	for i := range out {
		out[i] = math.Exp(out[i])
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// LoadScaler reads a scaler artifact.
func LoadScaler(path string) (*Scaler, error) {
	var s Scaler
	if err := readYAML(path, &s); err != nil {
		return nil, err
	}
	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("invalid scaler %s: %d means, %d scales", path, len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// Transform standardizes x. Zero scales are treated as 1.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.Mean)
	for i, sc := range s.Scale {
		if sc != 0 {
			out[i] /= sc
		}
	}
	return out, nil
}

// LoadFeatureNames reads the ordered feature list artifact.
func LoadFeatureNames(path string) ([]string, error) {
	var names []string
	if err := readYAML(path, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("feature list %s is empty", path)
	}
	return names, nil
}
