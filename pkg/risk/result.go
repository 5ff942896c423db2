package risk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Variant selects the output contract of the deployed scoring engine.
type Variant string

const (
	// VariantValue is a single probability printed on one line.
	VariantValue Variant = "value"
	// VariantTriple is "p0,p1,label" with label 0 or 1.
	VariantTriple Variant = "triple"

	tripleFieldCount = 3
)

// ParseVariant converts a configuration string into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantValue, "":
		return VariantValue, nil
	case VariantTriple:
		return VariantTriple, nil
	default:
		return "", fmt.Errorf("unknown scorer output variant: %q", s)
	}
}

// ScoreResult is the parsed engine output.
type ScoreResult struct {
	Variant    Variant  `json:"variant" yaml:"variant"`
	Prediction *float64 `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	Prob0      *float64 `json:"prob_0,omitempty" yaml:"prob_0,omitempty"`
	Prob1      *float64 `json:"prob_1,omitempty" yaml:"prob_1,omitempty"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	RawOutput  string   `json:"raw_output" yaml:"raw_output"`
}

// Parse dispatches to the parser of the given variant.
func Parse(v Variant, out string) (*ScoreResult, error) {
	switch v {
	case VariantTriple:
		return ParseTriple(out)
	case VariantValue:
		return ParseValue(out)
	default:
		return nil, fmt.Errorf("unknown scorer output variant: %q", v)
	}
}

// ParseValue parses a single floating point prediction.
func ParseValue(out string) (*ScoreResult, error) {
	raw := strings.TrimSpace(out)
	v, err := parseFinite(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: err.Error()}
	}
	return &ScoreResult{
		Variant:    VariantValue,
		Prediction: &v,
		RawOutput:  raw,
	}, nil
}

// ParseTriple parses "p0,p1,label". Probabilities are not checked against
// each other or against the label.
func ParseTriple(out string) (*ScoreResult, error) {
	raw := strings.TrimSpace(out)
	parts := strings.Split(raw, ",")
	if len(parts) != tripleFieldCount {
		return nil, &ParseError{
			Raw:    raw,
			Reason: fmt.Sprintf("expected %d fields, got %d", tripleFieldCount, len(parts)),
		}
	}

	p0, err := parseFinite(parts[0])
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: "class 0 probability is " + err.Error()}
	}
	p1, err := parseFinite(parts[1])
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: "class 1 probability is " + err.Error()}
	}

	label := strings.TrimSpace(parts[2])
	if label != "0" && label != "1" {
		return nil, &ParseError{Raw: raw, Reason: fmt.Sprintf("invalid label %q", label)}
	}

	return &ScoreResult{
		Variant:   VariantTriple,
		Prob0:     &p0,
		Prob1:     &p1,
		Label:     label,
		RawOutput: raw,
	}, nil
}

// parseFinite rejects NaN and infinities, they cannot be encoded as JSON.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}
