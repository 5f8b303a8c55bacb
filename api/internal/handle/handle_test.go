package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/store"
	"wasteiq/api/internal/waste"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

type fakeService struct {
	got []classify.Request
}

func (f *fakeService) ClassifyAndSave(_ context.Context, req classify.Request) classify.LogEntry {
	f.got = append(f.got, req)
	r := waste.NewResult("Glass Jar", waste.Recyclable, 91, nil, waste.ModeRemote)
	return classify.LogEntry{ID: "log-9", UserID: req.UserID, ObjectName: r.ObjectName, Category: r.Category,
		Confidence: r.Confidence, Alternatives: r.Alternatives, Mode: r.Mode}
}

type fakeLogs struct {
	uid   string
	limit int
	err   error
}

func (f *fakeLogs) History(_ context.Context, uid string, limit int) ([]classify.LogEntry, error) {
	f.uid, f.limit = uid, limit
	return []classify.LogEntry{{ID: "a"}, {ID: "b"}}, f.err
}

func (f *fakeLogs) Stats(_ context.Context, uid string) (store.Stats, error) {
	f.uid = uid
	return store.Stats{Total: 3, ByCategory: map[string]int{"E-Waste": 3}}, f.err
}

type fakePoints struct{ found bool }

func (f fakePoints) Profile(_ context.Context, uid string) (store.Profile, error) {
	if !f.found {
		return store.Profile{}, store.ErrNotFound
	}
	return store.Profile{UserID: uid, TotalPoints: 55, WeeklyPoints: 5, Level: "Starter"}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	return e
}

func multipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="x.jpg"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(payload)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestClassifyMultipart(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	h := New(svc, nil, nil, "")
	body, ct := multipartBody(t, "image/jpeg", jpegMagic)
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.Classify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body)
	}
	e := decode(t, rec)
	if !e.Success || e.Message != "Classification complete" {
		t.Errorf("envelope = %+v", e)
	}
	var entry map[string]any
	_ = json.Unmarshal(e.Data, &entry)
	if entry["waste_category"] != "Recyclable" || entry["log_id"] != "log-9" {
		t.Errorf("data = %s", e.Data)
	}
	if len(svc.got) != 1 || svc.got[0].UserID != "u1" || !bytes.Equal(svc.got[0].Image, jpegMagic) {
		t.Errorf("service got %+v", svc.got)
	}
}

func TestClassifyRejects(t *testing.T) {
	t.Parallel()

	big := append(append([]byte{}, jpegMagic...), bytes.Repeat([]byte{0}, 10<<20)...)
	cases := []struct {
		name string
		ct   string
		body func(t *testing.T) (*bytes.Buffer, string)
		want int
	}{
		{"not an image", "", func(t *testing.T) (*bytes.Buffer, string) { return multipartBody(t, "text/plain", []byte("hello")) }, http.StatusBadRequest},
		{"too large", "", func(t *testing.T) (*bytes.Buffer, string) { return multipartBody(t, "image/jpeg", big) }, http.StatusBadRequest},
		{"bad base64", "application/json", func(*testing.T) (*bytes.Buffer, string) {
			return bytes.NewBufferString(`{"image_b64":"%%%"}`), ""
		}, http.StatusBadRequest},
		{"json text payload", "application/json", func(*testing.T) (*bytes.Buffer, string) {
			b64 := base64.StdEncoding.EncodeToString([]byte("plain words, not pixels"))
			return bytes.NewBufferString(`{"image_b64":"` + b64 + `"}`), ""
		}, http.StatusBadRequest},
		{"empty json", "application/json", func(*testing.T) (*bytes.Buffer, string) { return bytes.NewBufferString(`{}`), "" }, http.StatusBadRequest},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{}
			body, ct := tc.body(t)
			if ct == "" {
				ct = tc.ct
			}
			req := httptest.NewRequest(http.MethodPost, "/v1/classify", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("X-User-ID", "u1")
			rec := httptest.NewRecorder()
			New(svc, nil, nil, "").Classify(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			if e := decode(t, rec); e.Success {
				t.Error("success must be false")
			}
			if len(svc.got) != 0 {
				t.Error("service must not be called")
			}
		})
	}
}

func TestClassifyJSONDataURL(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	payload := `{"image_b64":"data:image/jpeg;base64,` + base64.StdEncoding.EncodeToString(jpegMagic) + `","image_url":"https://cdn/x.jpg"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u7")
	rec := httptest.NewRecorder()
	New(svc, nil, nil, "").Classify(rec, req)
	if rec.Code != http.StatusOK || len(svc.got) != 1 || svc.got[0].ImageURL != "https://cdn/x.jpg" {
		t.Fatalf("code = %d got = %+v", rec.Code, svc.got)
	}
}

func TestClassifyNeedsCaller(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(&fakeService{}, nil, nil, "").Classify(rec, httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader("{}")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	New(&fakeService{}, nil, nil, "").Classify(rec, httptest.NewRequest(http.MethodGet, "/v1/classify", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestHistoryScopes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role, query string
		wantUID     string
		wantLimit   int
	}{
		{"household", "", "u1", 50},
		{"admin", "?limit=5", "", 5},
		{"municipal", "?limit=9999", "u1", maxHistoryLimit},
	}
	for _, tc := range cases {
		logs := &fakeLogs{}
		req := httptest.NewRequest(http.MethodGet, "/v1/classify/history"+tc.query, nil)
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set("X-User-Role", tc.role)
		rec := httptest.NewRecorder()
		New(nil, logs, nil, "").History(rec, req)
		if rec.Code != http.StatusOK || logs.uid != tc.wantUID || logs.limit != tc.wantLimit {
			t.Errorf("%s%s: code=%d uid=%q limit=%d", tc.role, tc.query, rec.Code, logs.uid, logs.limit)
		}
		if e := decode(t, rec); e.Message != "2 records" {
			t.Errorf("message = %q", e.Message)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/classify/history?limit=-1", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	New(nil, &fakeLogs{}, nil, "").History(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit code = %d", rec.Code)
	}
}

func TestStatsScopes(t *testing.T) {
	t.Parallel()

	for role, wantUID := range map[string]string{"household": "u1", "driver": "u1", "admin": "", "municipal": ""} {
		logs := &fakeLogs{}
		req := httptest.NewRequest(http.MethodGet, "/v1/classify/stats", nil)
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set("X-User-Role", role)
		rec := httptest.NewRecorder()
		New(nil, logs, nil, "").Stats(rec, req)
		if rec.Code != http.StatusOK || logs.uid != wantUID {
			t.Errorf("%s: code=%d uid=%q", role, rec.Code, logs.uid)
		}
		var st store.Stats
		_ = json.Unmarshal(decode(t, rec).Data, &st)
		if st.Total != 3 {
			t.Errorf("%s: stats = %+v", role, st)
		}
	}

	logs := &fakeLogs{err: errors.New("db gone")}
	req := httptest.NewRequest(http.MethodGet, "/v1/classify/stats", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	New(nil, logs, nil, "").Stats(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("store error code = %d", rec.Code)
	}
}

func TestNoStoreConfigured(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/classify/history", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	New(nil, nil, nil, "").History(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestPoints(t *testing.T) {
	t.Parallel()

	for _, found := range []bool{true, false} {
		req := httptest.NewRequest(http.MethodGet, "/v1/gamification/me", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		New(nil, nil, fakePoints{found: found}, "").Points(rec, req)
		var p store.Profile
		_ = json.Unmarshal(decode(t, rec).Data, &p)
		if rec.Code != http.StatusOK || p.UserID != "u1" {
			t.Fatalf("found=%v code=%d profile=%+v", found, rec.Code, p)
		}
		if !found && (p.Level != "Beginner" || p.TotalPoints != 0) {
			t.Errorf("default profile = %+v", p)
		}
	}
}

func TestUpdatePrompt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := New(nil, nil, nil, dir)

	post := func(role, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/prompts", strings.NewReader(body))
		req.Header.Set("X-User-ID", "ops")
		req.Header.Set("X-User-Role", role)
		rec := httptest.NewRecorder()
		h.UpdatePrompt(rec, req)
		return rec
	}

	if rec := post("household", `{"name":"detect","text":"x"}`); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin code = %d", rec.Code)
	}
	if rec := post("admin", `{"name":"../etc/passwd","text":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad name code = %d", rec.Code)
	}
	rec := post("admin", `{"name":"Detect.txt","text":"Name the object."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body)
	}
	b, err := os.ReadFile(filepath.Join(dir, "detect.txt"))
	if err != nil || string(b) != "Name the object." {
		t.Errorf("file = %q, %v", b, err)
	}
}
