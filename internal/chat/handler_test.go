package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrc-devforce/devforce/internal/retrieval"
)

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/submit", h.Submit)
	r.Post("/api/v1/sessions/{sessionID}/messages", h.SessionMessage)
	r.Delete("/api/v1/sessions/{sessionID}", h.ClearSession)
	return r
}

func do(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestSubmit_Success(t *testing.T) {
	model := &mockModel{reply: "Hello there."}
	retriever := &mockRetriever{result: retrieval.Result{Passages: []string{"Tuition is $5,000."}, Provenance: retrieval.ProvenanceVector}}
	router := newTestRouter(NewHandler(newTestService(model, retriever), false))

	rec, body := do(t, router, "POST", "/submit", `{"message":"what is tuition","conversationHistory":[]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello there.", body["reply"])
	meta, ok := body["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, meta["hasContext"])
	assert.EqualValues(t, len("[#1] Tuition is $5,000."), meta["contextChars"])
	assert.NotContains(t, meta, "degraded")
	assert.NotContains(t, meta, "provenance")
}

func TestSubmit_InvalidMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"whitespace", `{"message":"   "}`},
		{"missing", `{}`},
		{"null", `{"message":null}`},
		{"number", `{"message":42}`},
		{"object", `{"message":{"text":"hi"}}`},
		{"empty body", ``},
		{"malformed json", `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &mockModel{}
			retriever := &mockRetriever{}
			router := newTestRouter(NewHandler(newTestService(model, retriever), false))

			rec, body := do(t, router, "POST", "/submit", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, MsgInvalidMessage, body["error"])
			assert.Equal(t, 0, model.calls())
			assert.Equal(t, int32(0), retriever.calls.Load())
		})
	}
}

func TestSubmit_InvalidHistory(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"string", `{"message":"hi","conversationHistory":"yesterday"}`},
		{"object", `{"message":"hi","conversationHistory":{"role":"user"}}`},
		{"bad role", `{"message":"hi","conversationHistory":[{"role":"system","content":"x"}]}`},
		{"missing role", `{"message":"hi","conversationHistory":[{"content":"x"}]}`},
		{"non-string content", `{"message":"hi","conversationHistory":[{"role":"user","content":5}]}`},
		{"scalar entries", `{"message":"hi","conversationHistory":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &mockModel{}
			router := newTestRouter(NewHandler(newTestService(model, &mockRetriever{}), false))

			rec, body := do(t, router, "POST", "/submit", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, MsgInvalidHistory, body["error"])
			assert.Equal(t, 0, model.calls())
		})
	}
}

func TestSubmit_NullHistoryAccepted(t *testing.T) {
	router := newTestRouter(NewHandler(newTestService(&mockModel{}, &mockRetriever{}), false))

	rec, _ := do(t, router, "POST", "/submit", `{"message":"hi","conversationHistory":null}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmit_HistoryForwarded(t *testing.T) {
	model := &mockModel{}
	router := newTestRouter(NewHandler(newTestService(model, &mockRetriever{}), false))

	rec, _ := do(t, router, "POST", "/submit",
		`{"message":"and fees?","conversationHistory":[{"role":"user","content":"what is tuition"},{"role":"assistant","content":"$5,000"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, model.prompts[0], "User: what is tuition\nAssistant: $5,000")
}

func TestSubmit_GenerationError(t *testing.T) {
	model := &mockModel{err: errors.New("upstream 503")}
	router := newTestRouter(NewHandler(newTestService(model, &mockRetriever{}), false))

	rec, body := do(t, router, "POST", "/submit", `{"message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgGenerationFailed, body["error"])
	assert.NotContains(t, body, "detail")
}

func TestSubmit_GenerationErrorDetail(t *testing.T) {
	model := &mockModel{err: errors.New("upstream 503")}
	router := newTestRouter(NewHandler(newTestService(model, &mockRetriever{}), true))

	rec, body := do(t, router, "POST", "/submit", `{"message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["detail"], "upstream 503")
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	model := &mockModel{}
	router := newTestRouter(NewHandler(newTestService(model, &mockRetriever{}), false))

	oversized := `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec, body := do(t, router, "POST", "/submit", oversized)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, MsgBodyTooLarge, body["error"])
	assert.Equal(t, 0, model.calls())
}

func TestSessionMessage_BodyTooLarge(t *testing.T) {
	model := &mockModel{}
	svc, _ := newSessionService(t, model, &mockRetriever{})
	router := newTestRouter(NewHandler(svc, false))

	oversized := `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec, _ := do(t, router, "POST", "/api/v1/sessions/abc/messages", oversized)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, model.calls())
}

func TestSessionMessage(t *testing.T) {
	model := &mockModel{reply: "Welcome back."}
	svc, _ := newSessionService(t, model, &mockRetriever{})
	router := newTestRouter(NewHandler(svc, false))

	rec, body := do(t, router, "POST", "/api/v1/sessions/abc-123/messages", `{"message":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome back.", body["reply"])
	require.Len(t, model.converses, 1)
}

func TestSessionMessage_InvalidInput(t *testing.T) {
	model := &mockModel{}
	svc, _ := newSessionService(t, model, &mockRetriever{})
	router := newTestRouter(NewHandler(svc, false))

	rec, body := do(t, router, "POST", "/api/v1/sessions/abc/messages", `{"message":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidMessage, body["error"])

	rec, _ = do(t, router, "POST", "/api/v1/sessions/bad%20id/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, model.calls())
}

func TestSessionMessage_Disabled(t *testing.T) {
	router := newTestRouter(NewHandler(newTestService(&mockModel{}, &mockRetriever{}), false))

	rec, _ := do(t, router, "POST", "/api/v1/sessions/abc/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_ClearSession(t *testing.T) {
	svc, store := newSessionService(t, &mockModel{}, &mockRetriever{})
	router := newTestRouter(NewHandler(svc, false))

	rec, _ := do(t, router, "POST", "/api/v1/sessions/abc/messages", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, "DELETE", "/api/v1/sessions/abc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	history, err := store.History(t.Context(), "abc")
	require.NoError(t, err)
	assert.Empty(t, history)
}
