package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wasteiq/api/internal/handle"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		db   Pinger
		want int
	}{
		{"no db", nil, http.StatusOK},
		{"db up", pinger{}, http.StatusOK},
		{"db down", pinger{errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			Healthz(tc.db)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.want {
				t.Fatalf("code = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestMuxRoutes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewMux(handle.New(nil, nil, nil, ""), nil))
	defer srv.Close()

	for path, want := range map[string]int{
		"/healthz":             http.StatusOK,
		"/v1/classify":         http.StatusMethodNotAllowed,
		"/v1/classify/history": http.StatusUnauthorized,
		"/v1/classify/stats":   http.StatusUnauthorized,
		"/v1/gamification/me":  http.StatusUnauthorized,
		"/nope":                http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
