package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oncopredict/oncopredict/pkg/data"
	"github.com/oncopredict/oncopredict/pkg/net"
	"github.com/urfave/cli/v3"
)

const (
	limitFlagName = "limit"
	idFlagName    = "id"
	urlFlagName   = "url"
)

func newHistoryCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "List recorded predictions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  limitFlagName,
				Usage: "Maximum number of predictions to list",
				Value: data.ListLimitDefault,
			},
			&cli.StringFlag{
				Name:  idFlagName,
				Usage: "Show a single prediction",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := st.store()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("prediction history disabled, set store.path")
			}

			if id := cmd.String(idFlagName); id != "" {
				p, err := data.GetPrediction(db, id)
				if err != nil {
					return err
				}
				return st.encode(p)
			}

			limit := cmd.Int(limitFlagName)
			if limit <= 0 {
				return fmt.Errorf("invalid limit: %d", limit)
			}

			list, err := data.ListPredictions(db, limit)
			if err != nil {
				return err
			}

			state, err := data.GetDataState(db)
			if err != nil {
				return err
			}
			slog.Debug("store state", "counts", state)

			return st.encode(list)
		},
	}
}

func newPingCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check the health of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    urlFlagName,
				Usage:   "Base URL of a running server",
				Value:   "http://127.0.0.1:8000",
				Sources: cli.EnvVars("ONCOPREDICT_URL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			base := cmd.String(urlFlagName)

			var health map[string]any
			if err := net.GetJSON(ctx, net.JoinURL(base, "/health"), &health); err != nil {
				return fmt.Errorf("server at %s is not healthy: %w", base, err)
			}

			var tcgaHealth map[string]any
			if err := net.GetJSON(ctx, net.JoinURL(base, "/tcga/health"), &tcgaHealth); err != nil {
				slog.Debug("tcga health unavailable", "error", err)
			} else {
				health["tcga"] = tcgaHealth
			}
			return st.encode(health)
		},
	}
}
