package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/rag"
)

type fakePipeline struct {
	mu       sync.Mutex
	requests []rag.Request
	err      error
}

func (f *fakePipeline) Query(_ context.Context, req rag.Request) (*models.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.Response{
		Category: models.CategoryDefectDiagnosis,
		Answer:   "ответ: " + req.Question,
		Sources:  []string{"https://example.com/wiki/nozzle"},
	}, nil
}

func (f *fakePipeline) CorpusSize() int    { return 7 }
func (f *fakePipeline) VectorSearch() bool { return true }

func (f *fakePipeline) last() rag.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestServer(t *testing.T, p *fakePipeline, origins ...string) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "printdesk_test_total", Help: "test"}))
	ts := httptest.NewServer(NewServer(p, reg, nil, true, origins).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, HealthResponse{Status: "ok", CorpusSize: 7, VectorSearch: true}, health)
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantValidate bool
		wantTopK     int
	}{
		{name: "defaults", body: `{"question":"сопло забилось"}`, wantStatus: http.StatusOK, wantValidate: true},
		{name: "top_k", body: `{"question":"сопло забилось","top_k":5}`, wantStatus: http.StatusOK, wantValidate: true, wantTopK: 5},
		{name: "validation off", body: `{"question":"сопло забилось","enable_validation":false}`, wantStatus: http.StatusOK, wantValidate: false},
		{name: "blank question", body: `{"question":"   "}`, wantStatus: http.StatusBadRequest},
		{name: "negative top_k", body: `{"question":"сопло","top_k":-1}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{"question":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			ts := newTestServer(t, p)

			resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, p.requests)
				return
			}

			var out models.Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, models.CategoryDefectDiagnosis, out.Category)
			assert.Equal(t, "ответ: сопло забилось", out.Answer)
			assert.Equal(t, []string{"https://example.com/wiki/nozzle"}, out.Sources)

			req := p.last()
			assert.Equal(t, tt.wantValidate, req.EnableValidation)
			assert.Equal(t, tt.wantTopK, req.TopK)
		})
	}
}

func TestQueryAbandoned(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{err: context.Canceled})

	resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`{"question":"сопло"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})

	resp, err := http.Get(ts.URL + "/query")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "printdesk_test_total")
}

func TestWebSocket(t *testing.T) {
	p := &fakePipeline{}
	ts := newTestServer(t, p)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "query", Content: "сопло забилось"}))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "ответ: сопло забилось", msg.Content)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "defect_diagnosis", data["category"])

	require.NoError(t, conn.WriteJSON(Message{Type: "query", Content: "а что со столом?"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "response", msg.Type)
	assert.Contains(t, p.last().DialogContext, "сопло забилось")

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://desk.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://desk.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	assert.True(t, checkOrigin(nil)(r))
}
