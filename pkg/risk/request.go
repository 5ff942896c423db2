package risk

import (
	"encoding/json"
	"fmt"
)

// PredictionRequest is the uterine cancer risk form as submitted by clients.
// Field names match the scoring engine's column names.
type PredictionRequest struct {
	Age                   float64 `json:"Age" yaml:"Age"`
	BMI                   float64 `json:"BMI" yaml:"BMI"`
	MenopauseStatus       string  `json:"MenopauseStatus" yaml:"MenopauseStatus"`
	AbnormalBleeding      string  `json:"AbnormalBleeding" yaml:"AbnormalBleeding"`
	PelvicPain            string  `json:"PelvicPain" yaml:"PelvicPain"`
	ThickEndometrium      float64 `json:"ThickEndometrium" yaml:"ThickEndometrium"`
	Hypertension          string  `json:"Hypertension" yaml:"Hypertension"`
	Diabetes              string  `json:"Diabetes" yaml:"Diabetes"`
	FamilyHistoryCancer   string  `json:"FamilyHistoryCancer" yaml:"FamilyHistoryCancer"`
	Smoking               string  `json:"Smoking" yaml:"Smoking"`
	EstrogenTherapy       string  `json:"EstrogenTherapy" yaml:"EstrogenTherapy"`
	CA125Level            float64 `json:"CA125_Level" yaml:"CA125_Level"`
	HistologyType         string  `json:"HistologyType" yaml:"HistologyType"`
	Parity                float64 `json:"Parity" yaml:"Parity"`
	Gravidity             float64 `json:"Gravidity" yaml:"Gravidity"`
	HormoneReceptorStatus string  `json:"HormoneReceptorStatus" yaml:"HormoneReceptorStatus"`
	VaginalDischarge      string  `json:"VaginalDischarge" yaml:"VaginalDischarge"`
	UnexplainedWeightLoss string  `json:"UnexplainedWeightLoss" yaml:"UnexplainedWeightLoss"`
}

var (
	// MenopauseStatuses maps accepted spellings to the engine's
	// Perimenopausal, Postmenopausal and Premenopausal levels.
	MenopauseStatuses = map[string]string{
		"Pre-menopausal":  "Premenopausal",
		"Pre menopausal":  "Premenopausal",
		"Premenopausal":   "Premenopausal",
		"Post-menopausal": "Postmenopausal",
		"Post menopausal": "Postmenopausal",
		"Postmenopausal":  "Postmenopausal",
		"Peri-menopausal": "Perimenopausal",
		"Perimenopausal":  "Perimenopausal",
	}

	// HistologyTypes maps accepted spellings to Clear Cell, Endometrioid,
	// Normal, Other and Serous. "None" means no abnormal histology.
	HistologyTypes = map[string]string{
		"ClearCell":    "Clear Cell",
		"Clear Cell":   "Clear Cell",
		"Endometrioid": "Endometrioid",
		"Serous":       "Serous",
		"Other":        "Other",
		"None":         "Normal",
		"Normal":       "Normal",
	}

	// HormoneReceptorStatuses maps accepted spellings to Negative,
	// Positive and Unknown.
	HormoneReceptorStatuses = map[string]string{
		"Positive":       "Positive",
		"Negative":       "Negative",
		"NotApplicable":  "Unknown",
		"Not Applicable": "Unknown",
		"Unknown":        "Unknown",
	}
)

// Normalize returns a copy of req with the menopause, histology and hormone
// receptor fields rewritten to the engine's vocabulary. Lookups are exact;
// values with no mapping are kept as they are.
func Normalize(req PredictionRequest) PredictionRequest {
	req.MenopauseStatus = lookup(MenopauseStatuses, req.MenopauseStatus)
	req.HistologyType = lookup(HistologyTypes, req.HistologyType)
	req.HormoneReceptorStatus = lookup(HormoneReceptorStatuses, req.HormoneReceptorStatus)
	return req
}

// NormalizeStrict is Normalize but fails with an *UnmappedValueError when
// any of the mapped fields holds a value outside its table.
func NormalizeStrict(req PredictionRequest) (PredictionRequest, error) {
	checks := []struct {
		field string
		table map[string]string
		value string
	}{
		{"MenopauseStatus", MenopauseStatuses, req.MenopauseStatus},
		{"HistologyType", HistologyTypes, req.HistologyType},
		{"HormoneReceptorStatus", HormoneReceptorStatuses, req.HormoneReceptorStatus},
	}
	for _, c := range checks {
		if _, ok := c.table[c.value]; !ok {
			return req, &UnmappedValueError{Field: c.field, Value: c.value}
		}
	}
	return Normalize(req), nil
}

func lookup(table map[string]string, v string) string {
	if mapped, ok := table[v]; ok {
		return mapped
	}
	return v
}

// RequireFields checks that fields, a request decoded into a generic map,
// holds a non-null value for every engine column.
func RequireFields(fields map[string]any) error {
	for _, name := range FeatureNames {
		if v, ok := fields[name]; !ok || v == nil {
			return &MissingFieldError{Field: name}
		}
	}
	return nil
}

// DecodeRequest decodes a JSON request. All eighteen fields are required.
func DecodeRequest(b []byte) (PredictionRequest, error) {
	var req PredictionRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if err := RequireFields(fields); err != nil {
		return req, err
	}
	return req, nil
}
