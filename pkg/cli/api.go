package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oncopredict/oncopredict/pkg/data"
	"github.com/oncopredict/oncopredict/pkg/predict"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"github.com/oncopredict/oncopredict/pkg/scorer"
	"github.com/oncopredict/oncopredict/pkg/tcga"
)

// writeJSON encodes v before writing the header so an encoding failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		status = http.StatusInternalServerError
		b, _ = json.Marshal(map[string]string{"detail": fmt.Sprintf("error encoding response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// errorStatus maps service errors to an HTTP status and the message
// returned to the caller.
func errorStatus(err error) (int, string) {
	var (
		mfe *risk.MissingFieldError
		uve *risk.UnmappedValueError
		ce  *risk.ConfigurationError
		pe  *risk.ExternalProcessError
		pae *risk.ParseError
	)

	switch {
	case errors.As(err, &mfe):
		return http.StatusUnprocessableEntity, mfe.Error()
	case errors.As(err, &uve):
		return http.StatusUnprocessableEntity, uve.Error()
	case errors.Is(err, scorer.ErrTimeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.Is(err, scorer.ErrBusy):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &ce):
		return http.StatusInternalServerError, ce.Error()
	case errors.As(err, &pe):
		return http.StatusInternalServerError, pe.Error()
	case errors.As(err, &pae):
		return http.StatusInternalServerError, pae.Error()
	case errors.Is(err, predict.ErrScorerUnavailable):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, tcga.ErrNotLoaded):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, predict.ErrNoStore):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, data.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, serverMaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func healthAPIHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func predictAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, serverMaxBodyBytes))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		req, err := risk.DecodeRequest(b)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		resp, err := svc.Predict(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func predictionListAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := data.ListLimitDefault
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
				return
			}
			limit = n
		}

		list, err := svc.History(limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func predictionAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Lookup(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func tcgaPredictAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tcga.Input
		if !decodeBody(w, r, &in) {
			return
		}

		res, err := svc.PredictTCGA(in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func tcgaHealthAPIHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st, ok := svc.TCGAStatus()
		loaded := ok && (st.SubtypeLoaded || st.SurvivalLoaded)
		status := "ok"
		if !loaded {
			status = "models not loaded"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          status,
			"models_loaded":   loaded,
			"subtype_loaded":  st.SubtypeLoaded,
			"survival_loaded": st.SurvivalLoaded,
			"scaler_loaded":   st.ScalerLoaded,
			"features":        st.Features,
		})
	}
}
