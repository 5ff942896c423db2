package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"github.com/oncopredict/oncopredict/pkg/tcga"
)

const (
	ListLimitDefault = 100

	// fixed width so created_at sorts lexically
	timeFormat = "2006-01-02T15:04:05.000000000Z"

	insertPredictionSQL = `INSERT INTO prediction (
			id, created_at, variant, request, args,
			prediction, prob_0, prob_1, label, raw_output, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectPredictionSQL = `SELECT
			id, created_at, variant, request, args,
			prediction, prob_0, prob_1, label, raw_output, error
		FROM prediction
	`

	insertTCGAPredictionSQL = `INSERT INTO tcga_prediction (
			id, created_at, input, subtype, subtype_confidence,
			survival, survival_probability, risk_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
)

// ErrNotFound is returned when no record matches the requested ID.
var ErrNotFound = errors.New("prediction not found")

// Prediction is a recorded risk scoring call, successful or not.
type Prediction struct {
	ID        string                 `json:"id" yaml:"id"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
	Request   risk.PredictionRequest `json:"request" yaml:"request"`
	Args      []string               `json:"args" yaml:"args"`
	Result    *risk.ScoreResult      `json:"result,omitempty" yaml:"result,omitempty"`
	Variant   risk.Variant           `json:"variant" yaml:"variant"`
	Error     string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewPrediction creates a record with a fresh ID for a normalized request.
func NewPrediction(req risk.PredictionRequest, v risk.FeatureVector, variant risk.Variant) *Prediction {
	return &Prediction{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Request:   req,
		Args:      v.Args(),
		Variant:   variant,
	}
}

// SavePrediction inserts p.
func SavePrediction(db *sql.DB, p *Prediction) error {
	if db == nil {
		return errDBNotInitialized
	}
	if p == nil || p.ID == "" {
		return errors.New("prediction with ID required")
	}

	reqJSON, err := json.Marshal(p.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	argsJSON, err := json.Marshal(p.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	var (
		value, prob0, prob1 sql.NullFloat64
		label, raw          sql.NullString
	)
	if r := p.Result; r != nil {
		value = nullFloat(r.Prediction)
		prob0 = nullFloat(r.Prob0)
		prob1 = nullFloat(r.Prob1)
		label = sql.NullString{String: r.Label, Valid: r.Label != ""}
		raw = sql.NullString{String: r.RawOutput, Valid: true}
	}

	_, err = db.Exec(insertPredictionSQL,
		p.ID,
		p.CreatedAt.UTC().Format(timeFormat),
		string(p.Variant),
		string(reqJSON),
		string(argsJSON),
		value, prob0, prob1, label, raw,
		sql.NullString{String: p.Error, Valid: p.Error != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction %s: %w", p.ID, err)
	}
	return nil
}

// GetPrediction returns the prediction with id or ErrNotFound.
func GetPrediction(db *sql.DB, id string) (*Prediction, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectPredictionSQL+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction %s: %w", id, err)
	}
	defer rows.Close()

	list, err := mapPredictions(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// ListPredictions returns the most recent predictions first.
func ListPredictions(db *sql.DB, limit int) ([]*Prediction, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = ListLimitDefault
	}

	rows, err := db.Query(selectPredictionSQL+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	return mapPredictions(rows)
}

func mapPredictions(rows *sql.Rows) ([]*Prediction, error) {
	list := make([]*Prediction, 0)
	for rows.Next() {
		var (
			p                   Prediction
			created, variant    string
			reqJSON, argsJSON   string
			value, prob0, prob1 sql.NullFloat64
			label, raw, errText sql.NullString
		)
		if err := rows.Scan(&p.ID, &created, &variant, &reqJSON, &argsJSON,
			&value, &prob0, &prob1, &label, &raw, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}

		t, err := time.Parse(timeFormat, created)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		p.CreatedAt = t
		p.Variant = risk.Variant(variant)
		p.Error = errText.String

		if err := json.Unmarshal([]byte(reqJSON), &p.Request); err != nil {
			return nil, fmt.Errorf("failed to decode request of %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &p.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args of %s: %w", p.ID, err)
		}

		if raw.Valid {
			p.Result = &risk.ScoreResult{
				Variant:    p.Variant,
				Prediction: floatPtr(value),
				Prob0:      floatPtr(prob0),
				Prob1:      floatPtr(prob1),
				Label:      label.String,
				RawOutput:  raw.String,
			}
		}
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return list, nil
}

// SaveTCGAPrediction records a subtype/survival prediction and returns its ID.
func SaveTCGAPrediction(db *sql.DB, in tcga.Input, res *tcga.Result) (string, error) {
	if db == nil {
		return "", errDBNotInitialized
	}
	if res == nil {
		return "", errors.New("result required")
	}

	inJSON, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}

	id := uuid.NewString()
	st, sv := res.MolecularSubtype, res.Survival
	_, err = db.Exec(insertTCGAPredictionSQL,
		id,
		time.Now().UTC().Format(timeFormat),
		string(inJSON),
		sql.NullString{String: st.PredictedClass, Valid: st.Error == ""},
		nullFloat(st.Confidence),
		sql.NullString{String: sv.Prediction, Valid: sv.Error == ""},
		nullFloat(sv.SurvivalProbability),
		sql.NullString{String: sv.RiskCategory, Valid: sv.Error == ""},
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert tcga prediction: %w", err)
	}
	return id, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
