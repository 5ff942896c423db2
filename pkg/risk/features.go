package risk

import "strconv"

// FeatureCount is the number of positional arguments the scoring engine expects.
const FeatureCount = 18

// FeatureNames lists the engine's columns in positional order. The engine
// assigns arguments to columns by position only, so this order must match
// the one the model was trained with.
var FeatureNames = [FeatureCount]string{
	"Age",
	"BMI",
	"MenopauseStatus",
	"AbnormalBleeding",
	"PelvicPain",
	"ThickEndometrium",
	"Hypertension",
	"Diabetes",
	"FamilyHistoryCancer",
	"Smoking",
	"EstrogenTherapy",
	"CA125_Level",
	"HistologyType",
	"Parity",
	"Gravidity",
	"HormoneReceptorStatus",
	"VaginalDischarge",
	"UnexplainedWeightLoss",
}

// Feature is a single named scalar of a FeatureVector.
type Feature struct {
	Name        string  `json:"name" yaml:"name"`
	Number      float64 `json:"number,omitempty" yaml:"number,omitempty"`
	Text        string  `json:"text,omitempty" yaml:"text,omitempty"`
	Categorical bool    `json:"categorical" yaml:"categorical"`
}

// String returns the argument form of the feature.
func (f Feature) String() string {
	if f.Categorical {
		return f.Text
	}
	return strconv.FormatFloat(f.Number, 'f', -1, 64)
}

// FeatureVector is the ordered input of a single engine call.
type FeatureVector [FeatureCount]Feature

// Args returns the vector as process arguments.
func (v FeatureVector) Args() []string {
	args := make([]string, len(v))
	for i, f := range v {
		args[i] = f.String()
	}
	return args
}

// Serialize projects req onto the engine's positional order. It does not
// normalize; callers pass a request that already went through Normalize.
func Serialize(req PredictionRequest) FeatureVector {
	num := func(i int, v float64) Feature {
		return Feature{Name: FeatureNames[i], Number: v}
	}
	cat := func(i int, v string) Feature {
		return Feature{Name: FeatureNames[i], Text: v, Categorical: true}
	}

	return FeatureVector{
		num(0, req.Age),
		num(1, req.BMI),
		cat(2, req.MenopauseStatus),
		cat(3, req.AbnormalBleeding),
		cat(4, req.PelvicPain),
		num(5, req.ThickEndometrium),
		cat(6, req.Hypertension),
		cat(7, req.Diabetes),
		cat(8, req.FamilyHistoryCancer),
		cat(9, req.Smoking),
		cat(10, req.EstrogenTherapy),
		num(11, req.CA125Level),
		cat(12, req.HistologyType),
		num(13, req.Parity),
		num(14, req.Gravidity),
		cat(15, req.HormoneReceptorStatus),
		cat(16, req.VaginalDischarge),
		cat(17, req.UnexplainedWeightLoss),
	}
}
