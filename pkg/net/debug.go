package net

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
)

// logResponse dumps resp at debug level. The body is left readable.
func logResponse(ctx context.Context, resp *http.Response) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		slog.Debug("http response", "url", resp.Request.URL.String(), "dump", string(dump))
	}
}
