package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oncopredict/oncopredict/pkg/net"
	"github.com/oncopredict/oncopredict/pkg/predict"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"github.com/oncopredict/oncopredict/pkg/tcga"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	stdinPath          = "-"
	batchConcurrentMax = 4
)

const (
	inputFlagName       = "input"
	concurrencyFlagName = "concurrency"
	remoteFlagName      = "remote"
	strictFlagName      = "strict"
)

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     inputFlagName,
		Aliases:  []string{"i"},
		Usage:    "Path to a JSON or YAML input file, - for stdin",
		Required: true,
	}
}

func strictFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  strictFlagName,
		Usage: "Reject categorical values without a mapping, overrides normalize.strict",
	}
}

func newPredictCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "predict",
		Usage:     "Score one risk prediction request",
		UsageText: "oncopredict predict --input request.json",
		Flags: []cli.Flag{
			inputFlag(),
			strictFlag(),
			&cli.StringFlag{
				Name:  remoteFlagName,
				Usage: "Base URL of a running server to score on instead of locally",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st.applyStrict(cmd)

			reqs, err := readRequests(cmd.String(inputFlagName), false)
			if err != nil {
				return err
			}
			req := reqs[0]

			if base := cmd.String(remoteFlagName); base != "" {
				var resp predict.Response
				if err := net.PostJSON(ctx, net.JoinURL(base, "/predict"), req, &resp); err != nil {
					return fmt.Errorf("remote prediction failed: %w", err)
				}
				return st.encode(resp)
			}

			svc, err := st.service()
			if err != nil {
				return err
			}

			resp, err := svc.Predict(ctx, req)
			if err != nil {
				return fmt.Errorf("prediction failed: %w", err)
			}
			return st.encode(resp)
		},
	}
}

func newBatchCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Score a list of risk prediction requests",
		UsageText: "oncopredict batch --input requests.json --concurrency 2",
		Flags: []cli.Flag{
			inputFlag(),
			strictFlag(),
			&cli.IntFlag{
				Name:  concurrencyFlagName,
				Usage: "Maximum number of requests scored at once",
				Value: batchConcurrentMax,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st.applyStrict(cmd)

			reqs, err := readRequests(cmd.String(inputFlagName), true)
			if err != nil {
				return err
			}

			svc, err := st.service()
			if err != nil {
				return err
			}

			items, err := svc.PredictBatch(ctx, reqs, cmd.Int(concurrencyFlagName))
			if err != nil {
				return err
			}
			return st.encode(items)
		},
	}
}

// NormalizeResult shows what would be sent to the scoring engine.
type NormalizeResult struct {
	Request risk.PredictionRequest `json:"request" yaml:"request"`
	Args    []string               `json:"args" yaml:"args"`
}

func newNormalizeCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Print the normalized request and engine arguments without scoring",
		UsageText: "oncopredict normalize --input request.json",
		Flags:     []cli.Flag{inputFlag(), strictFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var req risk.PredictionRequest
			if err := readInput(cmd.String(inputFlagName), &req); err != nil {
				return err
			}

			res, err := normalize(req, st.cfg.Normalize.Strict || cmd.Bool(strictFlagName))
			if err != nil {
				return err
			}
			return st.encode(res)
		},
	}
}

func normalize(req risk.PredictionRequest, strict bool) (*NormalizeResult, error) {
	var err error
	if strict {
		if req, err = risk.NormalizeStrict(req); err != nil {
			return nil, err
		}
	} else {
		req = risk.Normalize(req)
	}
	return &NormalizeResult{Request: req, Args: risk.Serialize(req).Args()}, nil
}

func newTCGACmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "tcga",
		Usage:     "Predict molecular subtype and survival from TCGA features",
		UsageText: "oncopredict tcga --input sample.json",
		Flags:     []cli.Flag{inputFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var in tcga.Input
			if err := readInput(cmd.String(inputFlagName), &in); err != nil {
				return err
			}

			svc, err := st.service()
			if err != nil {
				return err
			}

			res, err := svc.PredictTCGA(in)
			if err != nil {
				return fmt.Errorf("tcga prediction failed: %w", err)
			}
			return st.encode(res)
		},
	}
}

func (st *appState) applyStrict(cmd *cli.Command) {
	if cmd.Bool(strictFlagName) {
		st.cfg.Normalize.Strict = true
	}
}

type decodeFunc func([]byte, any) error

// loadInput reads path and picks its decoder. Files ending in .yaml or .yml
// are read as YAML, everything else as JSON.
func loadInput(path string) ([]byte, decodeFunc, error) {
	if path == "" {
		return nil, nil, errors.New("input path required")
	}

	var (
		b   []byte
		err error
	)
	if path == stdinPath {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error reading input %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return b, yaml.Unmarshal, nil
	default:
		return b, json.Unmarshal, nil
	}
}

// readInput decodes path into v.
func readInput(path string, v any) error {
	b, decode, err := loadInput(path)
	if err != nil {
		return err
	}
	if err := decode(b, v); err != nil {
		return fmt.Errorf("error decoding input %s: %w", path, err)
	}
	return nil
}

// readRequests decodes one request, or a list when batch is set, and
// rejects any request missing one of the engine columns.
func readRequests(path string, batch bool) ([]risk.PredictionRequest, error) {
	b, decode, err := loadInput(path)
	if err != nil {
		return nil, err
	}

	var (
		fields []map[string]any
		reqs   []risk.PredictionRequest
	)
	if batch {
		if err := decode(b, &fields); err != nil {
			return nil, fmt.Errorf("error decoding input %s: %w", path, err)
		}
		if err := decode(b, &reqs); err != nil {
			return nil, fmt.Errorf("error decoding input %s: %w", path, err)
		}
	} else {
		var (
			f   map[string]any
			req risk.PredictionRequest
		)
		if err := decode(b, &f); err != nil {
			return nil, fmt.Errorf("error decoding input %s: %w", path, err)
		}
		if err := decode(b, &req); err != nil {
			return nil, fmt.Errorf("error decoding input %s: %w", path, err)
		}
		fields, reqs = []map[string]any{f}, []risk.PredictionRequest{req}
	}

	for i, f := range fields {
		if err := risk.RequireFields(f); err != nil {
			if batch {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			return nil, err
		}
	}
	return reqs, nil
}
