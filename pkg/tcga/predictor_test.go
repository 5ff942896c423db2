package tcga

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	subtypeYAML = `name: subtype
classes: [0, 1, 2, 3]
intercepts: [0, 0, 0, 0]
coefficients:
  - [0, 0, 0, 0, 0, 0]
  - [0, 0, 0, 2, 0, 0]
  - [0, 0, 0, 0, 0, 0]
  - [0, 0, 0, 0, 0, 0]
`
	survivalYAML = `name: survival
intercepts: [0]
coefficients:
  - [0, 0, 1, 0, 0, 0]
`
	scalerYAML = `mean: [0, 0, 60, 0, 0, 0]
scale: [1, 1, 10, 1, 1, 0]
`
)

func writeArtifacts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	return dir
}

func TestLoad_Empty(t *testing.T) {
	p, err := Load(t.TempDir())
	require.NoError(t, err)

	st := p.Status()
	assert.False(t, st.SubtypeLoaded)
	assert.False(t, st.SurvivalLoaded)
	assert.Equal(t, len(DefaultFeatureOrder), st.Features)

	_, err = p.Predict(Input{})
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoad_Malformed(t *testing.T) {
	dir := writeArtifacts(t, map[string]string{SubtypeModelFile: "intercepts: [0]\ncoefficients: [[1, 2], [3]]\n"})
	_, err := Load(dir)
	assert.Error(t, err)

	dir = writeArtifacts(t, map[string]string{ScalerFile: "mean: [1, 2]\nscale: [1]\n"})
	_, err = Load(dir)
	assert.Error(t, err)

	dir = writeArtifacts(t, map[string]string{FeaturesFile: "[]\n"})
	_, err = Load(dir)
	assert.Error(t, err)
}

func TestPredict_BothModels(t *testing.T) {
	dir := writeArtifacts(t, map[string]string{
		SubtypeModelFile:  subtypeYAML,
		SurvivalModelFile: survivalYAML,
		ScalerFile:        scalerYAML,
	})
	p, err := Load(dir)
	require.NoError(t, err)

	res, err := p.Predict(Input{DiagnosisAge: 80, MSIMantisScore: 3})
	require.NoError(t, err)

	assert.Equal(t, "MSI", res.MolecularSubtype.PredictedClass)
	require.NotNil(t, res.MolecularSubtype.Confidence)
	assert.Greater(t, *res.MolecularSubtype.Confidence, 0.9)
	assert.Empty(t, res.MolecularSubtype.Error)

	// scaled age (80-60)/10 = 2, sigmoid(2) ~ 0.88 deceased
	assert.Equal(t, "Deceased", res.Survival.Prediction)
	assert.Equal(t, "High Risk", res.Survival.RiskCategory)
	require.NotNil(t, res.Survival.SurvivalProbability)
	assert.InDelta(t, 0.1192, *res.Survival.SurvivalProbability, 1e-3)
}

func TestPredict_LowRisk(t *testing.T) {
	dir := writeArtifacts(t, map[string]string{
		SurvivalModelFile: survivalYAML,
		ScalerFile:        scalerYAML,
	})
	p, err := Load(dir)
	require.NoError(t, err)

	res, err := p.Predict(Input{DiagnosisAge: 40})
	require.NoError(t, err)
	assert.Equal(t, "Living", res.Survival.Prediction)
	assert.Equal(t, "Low Risk", res.Survival.RiskCategory)
	require.NotNil(t, res.Survival.SurvivalProbability)
	assert.Greater(t, *res.Survival.SurvivalProbability, 0.5)
	assert.Equal(t, "Subtype model not loaded", res.MolecularSubtype.Error)
}

func TestPredict_SurvivalMissing(t *testing.T) {
	dir := writeArtifacts(t, map[string]string{SubtypeModelFile: subtypeYAML})
	p, err := Load(dir)
	require.NoError(t, err)

	res, err := p.Predict(Input{})
	require.NoError(t, err)
	assert.Equal(t, "Survival model not loaded", res.Survival.Error)
	assert.NotEmpty(t, res.MolecularSubtype.PredictedClass)
}

func TestPredict_SaturatedProbabilities(t *testing.T) {
	survival, err := NewLinearModel("survival", nil, []float64{0}, [][]float64{{1, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	subtype, err := NewLinearModel("subtype", nil, []float64{0, 0}, [][]float64{{0, 0, 0, 0, 0, 0}, {-1, 0, 0, 0, 0, 0}})
	require.NoError(t, err)
	p := NewPredictor(subtype, survival, nil, nil)

	res, err := p.Predict(Input{MutationCount: 5000})
	require.NoError(t, err)

	require.NotNil(t, res.Survival.SurvivalProbability)
	assert.Equal(t, 0.0, *res.Survival.SurvivalProbability)
	assert.Equal(t, "High Risk", res.Survival.RiskCategory)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"survival_probability":0`)
	assert.Contains(t, string(b), `"confidence":1`)

	res, err = NewPredictor(nil, nil, nil, nil).Predict(Input{})
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, res)
}

func TestPredict_ErrorOnlyShape(t *testing.T) {
	survival, err := NewLinearModel("survival", nil, []float64{0}, [][]float64{{0, 0, 0, 0, 0, 0}})
	require.NoError(t, err)

	res, err := NewPredictor(nil, survival, nil, nil).Predict(Input{})
	require.NoError(t, err)

	b, err := json.Marshal(res.MolecularSubtype)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "Subtype model not loaded"}`, string(b))
}

func TestVector_FeatureOrder(t *testing.T) {
	race := 1
	in := Input{
		MutationCount:         120,
		FractionGenomeAltered: 0.3,
		DiagnosisAge:          64,
		MSIMantisScore:        0.4,
		MSISensorScore:        2.5,
		RaceCategory:          &race,
	}

	p := NewPredictor(nil, nil, nil, nil)
	assert.Equal(t, []float64{120, 0.3, 64, 0.4, 2.5, 1}, p.Vector(in))

	p = NewPredictor(nil, nil, nil, []string{"Diagnosis Age", "Tumor Stage", "Mutation Count"})
	assert.Equal(t, []float64{64, 0, 120}, p.Vector(in))
}

func TestVector_DefaultRace(t *testing.T) {
	p := NewPredictor(nil, nil, nil, nil)
	x := p.Vector(Input{})
	assert.Equal(t, float64(defaultRaceCategory), x[5])
}

func TestPredict_WidthMismatch(t *testing.T) {
	dir := writeArtifacts(t, map[string]string{
		SubtypeModelFile: subtypeYAML,
		FeaturesFile:     "- Diagnosis Age\n- Mutation Count\n",
	})
	p, err := Load(dir)
	require.NoError(t, err)

	_, err = p.Predict(Input{})
	assert.Error(t, err)
}

func TestLinearModel_Softmax(t *testing.T) {
	m := &LinearModel{
		Intercepts:   []float64{0, 0, 0},
		Coefficients: [][]float64{{1, 0}, {0, 1}, {0, 0}},
	}
	require.NoError(t, m.init())
	assert.Equal(t, []int{0, 1, 2}, m.Classes)

	proba, err := m.PredictProba([]float64{0, 0})
	require.NoError(t, err)
	for _, p := range proba {
		assert.InDelta(t, 1.0/3, p, 1e-9)
	}

	class, _, err := m.Predict([]float64{0, 5})
	require.NoError(t, err)
	assert.Equal(t, 1, class)
}

func TestLinearModel_Logistic(t *testing.T) {
	m := &LinearModel{
		Intercepts:   []float64{0},
		Coefficients: [][]float64{{1}},
	}
	require.NoError(t, m.init())

	proba, err := m.PredictProba([]float64{0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, proba, 1e-9)
}

func TestLinearModel_Invalid(t *testing.T) {
	assert.Error(t, (&LinearModel{}).init())
	assert.Error(t, (&LinearModel{Intercepts: []float64{0}, Coefficients: [][]float64{{}}}).init())
	assert.Error(t, (&LinearModel{Intercepts: []float64{0, 0}, Coefficients: [][]float64{{1}}}).init())
	assert.Error(t, (&LinearModel{Classes: []int{1, 2, 3}, Intercepts: []float64{0}, Coefficients: [][]float64{{1}}}).init())
}

func TestScaler_ZeroScale(t *testing.T) {
	s := &Scaler{Mean: []float64{1, 1}, Scale: []float64{2, 0}}
	x, err := s.Transform([]float64{5, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, x)

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)
}

func TestNewLinearModel(t *testing.T) {
	m, err := NewLinearModel("survival", nil, []float64{0}, [][]float64{{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, m.Classes)
	assert.Equal(t, 2, m.NumFeatures())

	_, err = NewLinearModel("bad", nil, []float64{0, 0}, [][]float64{{1}})
	assert.ErrorContains(t, err, "invalid model bad")
}
