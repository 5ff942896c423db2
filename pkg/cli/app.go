package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/oncopredict/oncopredict/pkg/config"
	"github.com/oncopredict/oncopredict/pkg/data"
	"github.com/oncopredict/oncopredict/pkg/logging"
	"github.com/oncopredict/oncopredict/pkg/predict"
	"github.com/oncopredict/oncopredict/pkg/scorer"
	"github.com/oncopredict/oncopredict/pkg/tcga"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "oncopredict"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName  = "debug"
	configFlagName = "config"
	dbFlagName     = "db"
	formatFlagName = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefault(os.Stderr, logging.FormatCLI, "info")

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// appState is populated in Before and shared by every command.
type appState struct {
	out    io.Writer
	format string
	debug  bool
	cfg    *config.Config
	db     *sql.DB
}

func newApp(out io.Writer) *cli.Command {
	st := &appState{out: out, format: formatJSON}

	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Uterine cancer risk scoring service and CLI",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    debugFlagName,
				Usage:   "Prints verbose logs (optional, default: false)",
				Sources: cli.EnvVars("ONCOPREDICT_DEBUG"),
			},
			&cli.StringFlag{
				Name:  configFlagName,
				Usage: "Path to the config file (default: $HOME/.oncopredict/config.yaml)",
			},
			&cli.StringFlag{
				Name:  dbFlagName,
				Usage: "Path to the Sqlite database file, overrides store.path",
			},
			&cli.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*cli.Command{
			newServerCmd(st),
			newPredictCmd(st),
			newBatchCmd(st),
			newNormalizeCmd(st),
			newTCGACmd(st),
			newHistoryCmd(st),
			newPingCmd(st),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, st.init(cmd)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return st.close()
		},
	}
}

func (st *appState) init(cmd *cli.Command) error {
	st.debug = cmd.Bool(debugFlagName)
	if st.debug {
		logging.SetDefault(os.Stderr, logging.FormatCLI, "debug")
	}

	if f := cmd.String(formatFlagName); f == formatYAML || f == "yml" {
		st.format = formatYAML
	}

	cfg, err := loadConfig(cmd.String(configFlagName))
	if err != nil {
		return err
	}
	if p := cmd.String(dbFlagName); p != "" {
		cfg.Store.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	st.cfg = cfg

	if !st.debug {
		logging.SetDefault(os.Stderr, logging.FormatCLI, cfg.Log.Level)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Read(path)
	}

	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return nil, fmt.Errorf("resolving app dir: %w", err)
	}
	if created {
		slog.Info("created app dir", "path", dir)
	}
	return config.ReadOrCreate(dir)
}

// store opens the history database on first use. A nil db means recording
// is disabled.
func (st *appState) store() (*sql.DB, error) {
	if st.db != nil || st.cfg.Store.Path == "" {
		return st.db, nil
	}

	if err := data.Init(st.cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(st.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	st.db = db
	return db, nil
}

func (st *appState) close() error {
	if st.db == nil {
		return nil
	}
	err := st.db.Close()
	st.db = nil
	return err
}

// service assembles the prediction service from config. A scorer that
// fails its startup checks is kept as an error so that everything not
// needing it still works.
func (st *appState) service() (*predict.Service, error) {
	opts := []predict.Option{predict.WithStrict(st.cfg.Normalize.Strict)}

	if s, err := scorer.New(st.cfg.Scorer); err != nil {
		slog.Warn("risk scorer unavailable", "error", err)
		opts = append(opts, predict.WithEngine(nil, err))
	} else {
		opts = append(opts, predict.WithEngine(s, nil))
	}

	if dir := st.cfg.TCGA.ModelsDir; dir != "" {
		p, err := tcga.Load(dir)
		if err != nil {
			slog.Error("tcga models failed to load", "error", err)
		} else {
			opts = append(opts, predict.WithTCGA(p))
		}
	}

	db, err := st.store()
	if err != nil {
		return nil, err
	}
	if db != nil {
		opts = append(opts, predict.WithStore(db))
	}

	return predict.NewService(opts...), nil
}

func (st *appState) encode(v any) error {
	if st.format == formatYAML {
		return yaml.NewEncoder(st.out).Encode(v)
	}
	e := json.NewEncoder(st.out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
