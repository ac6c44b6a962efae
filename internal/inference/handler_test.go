// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/reelrank/internal/config"
	"github.com/tomtom215/reelrank/internal/export"
	"github.com/tomtom215/reelrank/internal/index"
	"github.com/tomtom215/reelrank/internal/metrics"
)

// exportTestModel writes a three-title index for users "1" and "42" into a
// fresh model directory and returns the directory.
func exportTestModel(t *testing.T) string {
	t.Helper()
	idx, err := index.New(index.State{
		K:                2,
		QueryTerms:       []string{"1", "42"},
		QueryVectors:     [][]float32{{0, 0}, {1, 0}, {0, 1}},
		Candidates:       []string{"Heat (1995)", "Babe (1995)", "Fargo (1996)"},
		CandidateVectors: [][]float32{{0.9, 0.1}, {0.1, 0.9}, {0.5, 0.5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	modelDir := t.TempDir()
	_, err = export.Export(context.Background(), idx, export.Manifest{
		RunID:     "run-test",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, export.Options{
		SavedModelDir: config.SavedModelDir(modelDir),
		CodeDir:       filepath.Join(modelDir, "code"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return modelDir
}

func newTestServer(t *testing.T, loaded bool) http.Handler {
	t.Helper()
	h := NewHandler(2, 3)
	if loaded {
		m, err := LoadModel(context.Background(), exportTestModel(t))
		if err != nil {
			t.Fatalf("LoadModel() error = %v", err)
		}
		h.SetModel(m)
	}
	return NewRouter(h)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	t.Parallel()

	if rec := do(t, newTestServer(t, false), "GET", "/ping", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ping before load = %d, want 503", rec.Code)
	}
	if rec := do(t, newTestServer(t, true), "GET", "/ping", ""); rec.Code != http.StatusOK {
		t.Errorf("ping after load = %d, want 200", rec.Code)
	}
}

func TestInvocations(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	tests := []struct {
		name string
		body string
		want []Prediction
	}{
		{
			name: "single user default k",
			body: `{"user_id": "1"}`,
			want: []Prediction{{UserID: "1", KnownUser: true, Titles: []string{"Heat (1995)", "Fargo (1996)"}}},
		},
		{
			name: "explicit k",
			body: `{"user_id": "42", "k": 3}`,
			want: []Prediction{{UserID: "42", KnownUser: true, Titles: []string{"Babe (1995)", "Fargo (1996)", "Heat (1995)"}}},
		},
		{
			name: "instances",
			body: `{"instances": ["42", "unknown"], "k": 1}`,
			want: []Prediction{
				{UserID: "42", KnownUser: true, Titles: []string{"Babe (1995)"}},
				{UserID: "unknown", KnownUser: false, Titles: []string{"Heat (1995)"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, "POST", "/invocations", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var resp InvocationResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Predictions) != len(tt.want) {
				t.Fatalf("predictions = %+v", resp.Predictions)
			}
			for i, want := range tt.want {
				got := resp.Predictions[i]
				if got.UserID != want.UserID || got.KnownUser != want.KnownUser || strings.Join(got.Titles, "|") != strings.Join(want.Titles, "|") {
					t.Errorf("prediction[%d] = %+v, want %+v", i, got, want)
				}
				if len(got.Scores) != len(got.Titles) {
					t.Errorf("prediction[%d] has %d scores for %d titles", i, len(got.Scores), len(got.Titles))
				}
			}
		})
	}
}

func TestInvocationsErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"user_id":`, http.StatusBadRequest, "INVALID_JSON"},
		{"no user", `{"k": 2}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty instance", `{"instances": ["1", ""]}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty instances", `{"instances": []}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty instances and user", `{"user_id": "", "instances": []}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative k", `{"user_id": "1", "k": -1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"k above max", `{"user_id": "1", "k": 4}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"body too large", `{"user_id": "` + strings.Repeat("x", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, "POST", "/invocations", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Code != tt.wantErr {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantErr)
			}
		})
	}

	if rec := do(t, newTestServer(t, false), "POST", "/invocations", `{"user_id":"1"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invocation before load = %d, want 503", rec.Code)
	}
}

func TestManifestAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)

	rec := do(t, srv, "GET", "/manifest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("manifest status = %d", rec.Code)
	}
	var m export.Manifest
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.RunID != "run-test" || m.Index.Candidates != 3 {
		t.Errorf("manifest = %+v", m)
	}

	do(t, srv, "GET", "/ping", "")
	rec = do(t, srv, "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reelrank_inference_requests_total") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestLoadModelMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadModel(context.Background(), t.TempDir()); err == nil {
		t.Error("LoadModel(empty dir) should fail")
	}
}

func TestInvocationsCache(t *testing.T) {
	h := NewHandler(2, 3)
	h.UseCache(16, time.Minute)
	m, err := LoadModel(context.Background(), exportTestModel(t))
	if err != nil {
		t.Fatal(err)
	}
	h.SetModel(m)
	srv := NewRouter(h)

	hits := metrics.InferenceCacheLookups.WithLabelValues("hit")
	misses := metrics.InferenceCacheLookups.WithLabelValues("miss")
	hitsBefore, missesBefore := testutil.ToFloat64(hits), testutil.ToFloat64(misses)

	first := do(t, srv, "POST", "/invocations", `{"instances": ["1", "42"]}`)
	second := do(t, srv, "POST", "/invocations", `{"instances": ["42", "7"]}`)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status = %d, %d", first.Code, second.Code)
	}
	if got := testutil.ToFloat64(hits) - hitsBefore; got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(misses) - missesBefore; got != 3 {
		t.Errorf("cache misses = %v, want 3", got)
	}

	var resp InvocationResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(resp.Predictions[0].Titles, "|"); got != "Babe (1995)|Fargo (1996)" {
		t.Errorf("cached titles for 42 = %q", got)
	}

	h.SetModel(m)
	if _, _, size := h.cache.Stats(); size != 0 {
		t.Errorf("cache size after SetModel = %d, want 0", size)
	}
}
