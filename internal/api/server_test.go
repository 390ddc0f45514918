package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"antbot/internal/config"
	"antbot/internal/domain"
	"antbot/internal/service"
	"antbot/internal/session"
)

type stubPipeline struct {
	err error
}

func (p *stubPipeline) Ask(ctx context.Context, q string) (domain.Answer, error) {
	if p.err != nil {
		return domain.Answer{}, p.err
	}
	return domain.Answer{
		Text:    "answer: " + q,
		Sources: []domain.ScoredChunk{{Chunk: domain.Chunk{ChunkID: "d:0", Text: "ctx"}, Score: 1}},
	}, nil
}

func (p *stubPipeline) Stats() service.Stats {
	return service.Stats{Source: "antbot-docs/manual.pdf", Ready: p.err == nil, Chunks: 4, Ranker: "lexical"}
}

func newTestServer(p *stubPipeline) *Server {
	store := session.NewStore(p, func(err error) string { return "not ready: " + err.Error() })
	checks := []config.Check{{Name: "llm api key", OK: true}, {Name: "llm endpoint", OK: false}}
	return NewServer(":0", p, store, checks, 0)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	w := do(t, srv, "POST", "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] == "" {
		t.Fatal("missing session id")
	}
	return body["id"]
}

func TestHealthEndpoint(t *testing.T) {
	w := do(t, newTestServer(&stubPipeline{}), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	w := do(t, newTestServer(&stubPipeline{}), "GET", "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body statusResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Agent != "antbot" || body.Pipeline.Chunks != 4 || len(body.Settings) != 2 || body.Settings[1].OK {
		t.Errorf("unexpected status %+v", body)
	}
}

func TestConversationFlow(t *testing.T) {
	srv := newTestServer(&stubPipeline{})
	id := createSession(t, srv)

	w := do(t, srv, "POST", "/api/sessions/"+id+"/messages", `{"message":"how to reset?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp messageResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Answer != "answer: how to reset?" || len(resp.Sources) != 1 {
		t.Errorf("unexpected answer %+v", resp)
	}

	w = do(t, srv, "GET", "/api/sessions/"+id+"/messages", "")
	var log struct {
		Messages []session.Turn `json:"messages"`
	}
	json.NewDecoder(w.Body).Decode(&log)
	if len(log.Messages) != 2 || log.Messages[0].Role != domain.RoleUser {
		t.Errorf("unexpected log %+v", log.Messages)
	}

	if w := do(t, srv, "DELETE", "/api/sessions/"+id+"/messages", ""); w.Code != http.StatusNoContent {
		t.Errorf("reset: expected 204, got %d", w.Code)
	}
	w = do(t, srv, "GET", "/api/sessions/"+id+"/messages", "")
	json.NewDecoder(w.Body).Decode(&log)
	if len(log.Messages) != 0 {
		t.Errorf("reset should clear messages, got %d", len(log.Messages))
	}
}

func TestPostMessage_InitFailure(t *testing.T) {
	srv := newTestServer(&stubPipeline{err: fmt.Errorf("%w: %w", domain.ErrInitialization, domain.ErrNotFound)})
	id := createSession(t, srv)
	w := do(t, srv, "POST", "/api/sessions/"+id+"/messages", `{"message":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if !strings.HasPrefix(body["error"], "not ready: ") {
		t.Errorf("unexpected error body %q", body["error"])
	}
}

func TestPostMessage_BadRequests(t *testing.T) {
	srv := newTestServer(&stubPipeline{})
	id := createSession(t, srv)
	if w := do(t, srv, "POST", "/api/sessions/"+id+"/messages", `{"message":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty message: expected 400, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/sessions/"+id+"/messages", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/sessions/unknown/messages", `{"message":"hi"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected 404, got %d", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(&stubPipeline{})
	id := createSession(t, srv)
	if w := do(t, srv, "DELETE", "/api/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/sessions/"+id+"/messages", ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted session: expected 404, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	if w := do(t, newTestServer(&stubPipeline{}), "GET", "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
