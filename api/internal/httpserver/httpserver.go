// Package httpserver assembles the classifier routes and runs the server.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wasteiq/api/internal/handle"
)

// Pinger reports backing store health; nil means no store is configured.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Healthz answers "ok", or 503 when the database does not respond.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func NewMux(h *handle.Handle, db Pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Healthz(db))
	mux.HandleFunc("/v1/classify", h.Classify)
	mux.HandleFunc("/v1/classify/history", h.History)
	mux.HandleFunc("/v1/classify/stats", h.Stats)
	mux.HandleFunc("/v1/gamification/me", h.Points)
	mux.HandleFunc("/v1/prompts", h.UpdatePrompt)
	return mux
}

// Serve runs until ctx is done, then drains in-flight requests.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
