// Package handle exposes the classifier over HTTP. Responses use the
// {success, message, data} envelope.
package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/store"
)

type Classifier interface {
	ClassifyAndSave(ctx context.Context, req classify.Request) classify.LogEntry
}

type LogReader interface {
	History(ctx context.Context, uid string, limit int) ([]classify.LogEntry, error)
	Stats(ctx context.Context, uid string) (store.Stats, error)
}

type ProfileReader interface {
	Profile(ctx context.Context, uid string) (store.Profile, error)
}

// Roles with a wider view than their own records.
const (
	RoleAdmin     = "admin"
	RoleMunicipal = "municipal"
)

type Handle struct {
	svc       Classifier
	logs      LogReader
	points    ProfileReader
	promptDir string
}

// New wires the handlers; logs and points may be nil when no database is
// configured, their endpoints then answer 503.
func New(svc Classifier, logs LogReader, points ProfileReader, promptDir string) *Handle {
	return &Handle{svc: svc, logs: logs, points: points, promptDir: promptDir}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msg, Data: data})
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{Success: false, Message: msg})
}

// caller is the identity forwarded by the gateway in front of the service.
type caller struct {
	UID  string
	Role string
}

func callerFrom(r *http.Request) (caller, bool) {
	c := caller{
		UID:  strings.TrimSpace(r.Header.Get("X-User-ID")),
		Role: strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role"))),
	}
	if c.Role == "" {
		c.Role = "household"
	}
	return c, c.UID != ""
}
