package handle

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// promptNames are the prompt files the detector reads at start-up.
var promptNames = map[string]bool{"detect": true, "retry": true}

type UpdatePromptRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type UpdatePromptResponse struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Updated string `json:"updated"`
}

// UpdatePrompt writes <PROMPT_DIR>/<name>.txt with an atomic rename. The
// new text is used from the next start.
func (h *Handle) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if who, ok := callerFrom(r); !ok || who.Role != RoleAdmin {
		writeErr(w, http.StatusForbidden, "admin only")
		return
	}
	if h.promptDir == "" {
		writeErr(w, http.StatusServiceUnavailable, "PROMPT_DIR not configured")
		return
	}

	defer r.Body.Close()
	var req UpdatePromptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(req.Name)), ".txt")
	if !promptNames[name] {
		writeErr(w, http.StatusBadRequest, "name must be one of: detect, retry")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeErr(w, http.StatusBadRequest, "empty text")
		return
	}

	if err := os.MkdirAll(h.promptDir, 0o755); err != nil {
		writeErr(w, http.StatusInternalServerError, "make dir: "+err.Error())
		return
	}
	dstPath := filepath.Join(h.promptDir, name+".txt")

	tmp, err := os.CreateTemp(h.promptDir, name+".*.tmp")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "create temp: "+err.Error())
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(req.Text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		writeErr(w, http.StatusInternalServerError, "write temp: "+err.Error())
		return
	}
	_ = tmp.Chmod(0o644)
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		writeErr(w, http.StatusInternalServerError, "close temp: "+err.Error())
		return
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		writeErr(w, http.StatusInternalServerError, "rename: "+err.Error())
		return
	}

	writeOK(w, "Prompt saved; applied on next start", UpdatePromptResponse{
		Name:    name,
		Path:    dstPath,
		Size:    len(req.Text),
		Updated: time.Now().UTC().Format(time.RFC3339),
	})
}
