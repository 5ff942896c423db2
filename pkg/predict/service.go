package predict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oncopredict/oncopredict/pkg/data"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"github.com/oncopredict/oncopredict/pkg/tcga"
	"golang.org/x/sync/errgroup"
)

// ErrScorerUnavailable is returned when the service was built without a
// scoring engine, typically because its configuration check failed.
var ErrScorerUnavailable = errors.New("risk scorer not configured")

// Engine scores an ordered feature vector.
type Engine interface {
	Score(ctx context.Context, v risk.FeatureVector) (*risk.ScoreResult, error)
	Variant() risk.Variant
}

// Response is the outcome of a risk prediction.
type Response struct {
	ID               string `json:"id,omitempty" yaml:"id,omitempty"`
	risk.ScoreResult `yaml:",inline"`
}

// Service is built once at startup and shared by all handlers. Its fields
// are not modified after construction.
type Service struct {
	engine    Engine
	engineErr error
	strict    bool
	db        *sql.DB
	tcga      *tcga.Predictor
}

type Option func(*Service)

// WithEngine sets the scoring engine. A nil engine with a non-nil err
// keeps the error to report on each risk prediction.
func WithEngine(e Engine, err error) Option {
	return func(s *Service) {
		s.engine = e
		s.engineErr = err
	}
}

// WithStrict rejects categorical values without a mapping.
func WithStrict(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithStore records predictions in db.
func WithStore(db *sql.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithTCGA enables subtype and survival predictions.
func WithTCGA(p *tcga.Predictor) Option {
	return func(s *Service) {
		s.tcga = p
	}
}

func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare normalizes req and lays it out for the engine.
func (s *Service) Prepare(req risk.PredictionRequest) (risk.PredictionRequest, risk.FeatureVector, error) {
	var err error
	if s.strict {
		req, err = risk.NormalizeStrict(req)
		if err != nil {
			return req, risk.FeatureVector{}, err
		}
	} else {
		req = risk.Normalize(req)
	}
	return req, risk.Serialize(req), nil
}

// Predict scores req. Every attempt that reaches the engine is recorded
// when a store is configured; recording failures are logged only.
func (s *Service) Predict(ctx context.Context, req risk.PredictionRequest) (*Response, error) {
	if s.engine == nil {
		if s.engineErr != nil {
			return nil, s.engineErr
		}
		return nil, ErrScorerUnavailable
	}

	norm, vec, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, scoreErr := s.engine.Score(ctx, vec)

	rec := data.NewPrediction(norm, vec, s.engine.Variant())
	rec.Result = res
	if scoreErr != nil {
		rec.Error = scoreErr.Error()
	}
	s.record(rec)

	if scoreErr != nil {
		slog.Warn("prediction failed", "id", rec.ID, "duration", time.Since(start), "error", scoreErr)
		return nil, scoreErr
	}

	slog.Info("prediction scored", "id", rec.ID, "variant", res.Variant, "duration", time.Since(start))
	return &Response{ID: rec.ID, ScoreResult: *res}, nil
}

func (s *Service) record(p *data.Prediction) {
	if s.db == nil {
		return
	}
	if err := data.SavePrediction(s.db, p); err != nil {
		slog.Error("failed to record prediction", "id", p.ID, "error", err)
		p.ID = ""
	}
}

// BatchItem is the result of one request of a batch.
type BatchItem struct {
	Index    int       `json:"index" yaml:"index"`
	Response *Response `json:"response,omitempty" yaml:"response,omitempty"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// PredictBatch scores reqs with at most concurrency calls in flight.
// Individual failures are reported per item; only context cancellation
// aborts the batch.
func (s *Service) PredictBatch(ctx context.Context, reqs []risk.PredictionRequest, concurrency int) ([]BatchItem, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			items[i].Index = i
			if err := gctx.Err(); err != nil {
				items[i].Error = err.Error()
				return err
			}
			resp, err := s.Predict(gctx, req)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Response = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, fmt.Errorf("batch cancelled: %w", err)
	}
	return items, nil
}

// TCGAStatus reports loaded TCGA artifacts. ok is false when TCGA
// prediction is disabled.
func (s *Service) TCGAStatus() (tcga.Status, bool) {
	if s.tcga == nil {
		return tcga.Status{}, false
	}
	return s.tcga.Status(), true
}

// PredictTCGA runs the subtype and survival models.
func (s *Service) PredictTCGA(in tcga.Input) (*tcga.Result, error) {
	if s.tcga == nil {
		return nil, tcga.ErrNotLoaded
	}
	res, err := s.tcga.Predict(in)
	if err != nil {
		return nil, err
	}
	if s.db != nil {
		if _, err := data.SaveTCGAPrediction(s.db, in, res); err != nil {
			slog.Error("failed to record tcga prediction", "error", err)
		}
	}
	return res, nil
}

// History returns recent predictions, newest first.
func (s *Service) History(limit int) ([]*data.Prediction, error) {
	if s.db == nil {
		return nil, ErrNoStore
	}
	return data.ListPredictions(s.db, limit)
}

// Lookup returns one recorded prediction.
func (s *Service) Lookup(id string) (*data.Prediction, error) {
	if s.db == nil {
		return nil, ErrNoStore
	}
	return data.GetPrediction(s.db, id)
}

// ErrNoStore is returned by history queries when recording is disabled.
var ErrNoStore = errors.New("prediction history disabled")
