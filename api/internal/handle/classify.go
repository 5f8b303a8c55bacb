package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/imagenorm"
	"wasteiq/api/internal/util"
)

const (
	defaultDeadline = 60 * time.Second
	// multipart framing on top of the image itself
	formOverhead = 1 << 20
)

var (
	errNotImage = errors.New("file must be an image")
	errTooLarge = fmt.Errorf("image too large (max %dMB)", imagenorm.MaxInputBytes>>20)
	errNoImage  = errors.New("no image: send multipart field \"file\" or JSON {\"image_b64\"}")
)

type ClassifyRequest struct {
	ImageB64 string `json:"image_b64"`
	ImageURL string `json:"image_url,omitempty"`
}

// Classify accepts multipart/form-data with a "file" part or a JSON body
// carrying a base64 image.
func (h *Handle) Classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	who, ok := callerFrom(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing X-User-ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imagenorm.MaxInputBytes+formOverhead)
	img, imageURL, err := readImage(r)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = errTooLarge
		}
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r))
	defer cancel()

	entry := h.svc.ClassifyAndSave(ctx, classify.Request{Image: img, UserID: who.UID, ImageURL: imageURL})
	writeOK(w, "Classification complete", entry)
}

func readImage(r *http.Request) ([]byte, string, error) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "multipart/") {
		f, fh, err := r.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, "", errNoImage
			}
			return nil, "", err
		}
		defer f.Close()
		if !util.IsImageMIME(fh.Header.Get("Content-Type")) {
			return nil, "", errNotImage
		}
		img, err := readLimited(f)
		return img, "", err
	}

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", fmt.Errorf("bad json: %w", err)
	}
	if strings.TrimSpace(req.ImageB64) == "" {
		return nil, "", errNoImage
	}
	img, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		return nil, "", errors.New("bad image_b64")
	}
	if len(img) > imagenorm.MaxInputBytes {
		return nil, "", errTooLarge
	}
	if !util.IsImageMIME(util.PickMIME("", hint, img)) {
		return nil, "", errNotImage
	}
	return img, req.ImageURL, nil
}

func readLimited(rd io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(rd, imagenorm.MaxInputBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > imagenorm.MaxInputBytes {
		return nil, errTooLarge
	}
	if len(b) == 0 {
		return nil, errNoImage
	}
	return b, nil
}

func requestDeadline(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return defaultDeadline
}
