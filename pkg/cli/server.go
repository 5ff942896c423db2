package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/oncopredict/oncopredict/pkg/logging"
	"github.com/oncopredict/oncopredict/pkg/predict"
	"github.com/rs/cors"
	"github.com/urfave/cli/v3"
)

const (
	serverMaxHeaderBytes = 20
	serverMaxBodyBytes   = 1 << 20

	portFlagName    = "port"
	addressFlagName = "address"
)

func newServerCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the HTTP prediction server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    portFlagName,
				Usage:   "Port on which the server will listen, overrides server.port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:  addressFlagName,
				Usage: "Address on which the server will listen, overrides server.address",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return st.startServer(ctx, cmd)
		},
	}
}

func (st *appState) startServer(ctx context.Context, cmd *cli.Command) error {
	cfg := st.cfg
	if p := cmd.Int(portFlagName); p > 0 {
		cfg.Server.Port = p
	}
	if a := cmd.String(addressFlagName); a != "" {
		cfg.Server.Address = a
	}

	level := cfg.Log.Level
	if st.debug {
		level = "debug"
	}
	logging.SetDefault(os.Stdout, cfg.Log.Format, level)

	svc, err := st.service()
	if err != nil {
		return err
	}

	address := net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port))
	s := &http.Server{
		Addr:           address,
		Handler:        makeHandler(svc, cfg.Server.AllowedOrigins),
		ReadTimeout:    cfg.Server.Timeout,
		WriteTimeout:   cfg.Server.Timeout,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address), "strict", cfg.Normalize.Strict)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// makeHandler wires the routes, request logging and CORS.
func makeHandler(svc *predict.Service, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(logRequests(makeRouter(svc)))
}

func makeRouter(svc *predict.Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthAPIHandler)

	// Risk API
	mux.HandleFunc("POST /predict", predictAPIHandler(svc))
	mux.HandleFunc("GET /predictions", predictionListAPIHandler(svc))
	mux.HandleFunc("GET /predictions/{id}", predictionAPIHandler(svc))

	// TCGA API
	mux.HandleFunc("POST /tcga/predict", tcgaPredictAPIHandler(svc))
	mux.HandleFunc("GET /tcga/health", tcgaHealthAPIHandler(svc))

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
