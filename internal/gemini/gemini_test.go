package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sdrc-devforce/devforce/internal/conversation"
	"github.com/sdrc-devforce/devforce/internal/llm"
)

func candidate(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
}

// fakeGemini serves the subset of the Gemini REST API used by this package
// and records the last request body.
type fakeGemini struct {
	lastBody map[string]any
	fail     bool
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.lastBody = map[string]any{}
	_ = json.Unmarshal(body, &f.lastBody)

	if f.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"boom","status":"INVALID_ARGUMENT"}}`))
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", ", ", "student"} {
			data, _ := json.Marshal(candidate(part))
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate("complete reply"))
	case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), strings.HasSuffix(r.URL.Path, ":embedContent"):
		n := 1
		if reqs, ok := f.lastBody["requests"].([]any); ok {
			n = len(reqs)
		}
		embeddings := make([]any, n)
		for i := range embeddings {
			embeddings[i] = map[string]any{"values": []float32{float32(i), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *genai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestGenerator_Generate(t *testing.T) {
	fake := &fakeGemini{}
	g := NewGenerator(newTestClient(t, fake), "")

	reply, err := llm.Collect(g.Generate(context.Background(), "prompt text", llm.GenerationConfig{Temperature: 0.7}))
	require.NoError(t, err)
	assert.Equal(t, "complete reply", reply)

	cfg, ok := fake.lastBody["generationConfig"].(map[string]any)
	require.True(t, ok, "generation config must be sent")
	assert.InDelta(t, 0.7, cfg["temperature"], 0.001)
}

func TestGenerator_GenerateStream(t *testing.T) {
	g := NewGenerator(newTestClient(t, &fakeGemini{}), "")

	reply, err := llm.Collect(g.Generate(context.Background(), "prompt", llm.GenerationConfig{Stream: true}))
	require.NoError(t, err)
	assert.Equal(t, "Hello, student", reply)
}

func TestGenerator_GenerateError(t *testing.T) {
	g := NewGenerator(newTestClient(t, &fakeGemini{fail: true}), "")

	_, err := llm.Collect(g.Generate(context.Background(), "prompt", llm.GenerationConfig{}))
	assert.Error(t, err)
}

func TestGenerator_ConverseReplaysHistory(t *testing.T) {
	fake := &fakeGemini{}
	g := NewGenerator(newTestClient(t, fake), "")

	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "persona"},
		{Role: conversation.RoleAssistant, Content: "ack"},
	}
	reply, err := llm.Collect(g.Converse(context.Background(), history, "next", llm.GenerationConfig{}))
	require.NoError(t, err)
	assert.Equal(t, "complete reply", reply)

	contents, ok := fake.lastBody["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.Equal(t, "user", contents[2].(map[string]any)["role"])
}

func TestToContents_MapsRoles(t *testing.T) {
	contents := toContents([]conversation.Message{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, genai.Role(genai.RoleUser), genai.Role(contents[0].Role))
	assert.Equal(t, genai.Role(genai.RoleModel), genai.Role(contents[1].Role))
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestEmbedder_EmbedBatchPreservesOrder(t *testing.T) {
	e := NewEmbedder(newTestClient(t, &fakeGemini{}), "", TaskRetrievalDocument)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestEmbedder_Embed(t *testing.T) {
	e := NewEmbedder(newTestClient(t, &fakeGemini{}), "", "")

	vec, err := e.Embed(context.Background(), "what is tuition")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestEmbedder_Error(t *testing.T) {
	e := NewEmbedder(newTestClient(t, &fakeGemini{fail: true}), "", "")

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}
