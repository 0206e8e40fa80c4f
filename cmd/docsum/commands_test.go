package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

func TestClientPostJSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/process": `{"job_id":"j-1","status":"pending"}`,
	})

	resp, err := ts.client().post(context.Background(), "/api/process", map[string]any{"document_id": "d-1"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["job_id"] != "j-1" {
		t.Errorf("result = %v", result)
	}

	req := ts.requests[0]
	if req.ContentType != "application/json" {
		t.Errorf("content type = %q", req.ContentType)
	}
	if !strings.Contains(req.Body, `"document_id":"d-1"`) {
		t.Errorf("body = %s", req.Body)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(context.Background(), "/api/status/ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestClientPostFileMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts := newTestServer(t, map[string]string{
		"POST /api/upload": `{"document_id":"d-9","pages":2}`,
	})

	resp, err := ts.client().postFile(context.Background(), "/api/upload", path, map[string]string{
		"summary_mode": "brief",
		"backend":      "", // empty fields are dropped
	})
	if err != nil {
		t.Fatalf("postFile: %v", err)
	}
	resp.Body.Close()

	req := ts.requests[0]
	if !strings.HasPrefix(req.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", req.ContentType)
	}
	if !strings.Contains(req.Body, "%PDF-fake") {
		t.Error("file bytes missing from request body")
	}
	if !strings.Contains(req.Body, `name="file"; filename="doc.pdf"`) {
		t.Error("file part metadata missing")
	}
	if !strings.Contains(req.Body, "brief") {
		t.Error("extra field missing")
	}
	if strings.Contains(req.Body, `name="backend"`) {
		t.Error("empty field was sent")
	}
}

func TestPollJobReturnsResult(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/status/j-1": `{"job_id":"j-1","status":"completed","result":{"summary":"done"}}`,
	})

	if err := pollJob(context.Background(), ts.client(), "j-1"); err != nil {
		t.Fatalf("pollJob: %v", err)
	}
}

func TestPollJobSurfacesFailure(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/status/j-2": `{"job_id":"j-2","status":"failed","error":{"stage":"summarize","message":"boom"}}`,
	})

	err := pollJob(context.Background(), ts.client(), "j-2")
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Errorf("err = %v, want failure surfaced", err)
	}
}

func TestPollJobStopsOnCancelledContext(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/status/j-3": `{"job_id":"j-3","status":"running"}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- pollJob(ctx, ts.client(), "j-3") }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pollJob did not return after context cancellation")
	}
}
