package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/interfaces"
	er "github.com/replypilot/replypilot/internal/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, interfaces.LLMClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewLLMService(&Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	return server, client
}

func completionResponse(content string, tokens int) string {
	payload := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
		"usage": map[string]int{"total_tokens": tokens},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestGenerate_Success(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(completionResponse("hello there", 42)))
	})

	text, tokens, err := client.Generate(context.Background(), "sys", "user", interfaces.GenerateOptions{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, 42, tokens)
	assert.Equal(t, int64(42), client.TotalTokens())
}

func TestGenerate_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionResponse("recovered", 10)))
	})

	text, _, err := client.Generate(context.Background(), "sys", "user", interfaces.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, _, err := client.Generate(context.Background(), "sys", "user", interfaces.GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var extErr *er.ExternalServiceError
	assert.True(t, errors.As(err, &extErr))
	assert.Equal(t, "llm", extErr.Subsystem)
}

func TestGenerate_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := client.Generate(context.Background(), "sys", "user", interfaces.GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateJSON_ParsesFencedOutput(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("```json\n{\"valid\": true, \"issues\": []}\n```", 15)))
	})

	var out struct {
		Valid  bool     `json:"valid"`
		Issues []string `json:"issues"`
	}
	tokens, err := client.GenerateJSON(context.Background(), "sys", "user", `{"valid": bool, "issues": [string]}`, &out)
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, 15, tokens)
}

func TestGenerateJSON_RepromptsOnceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(completionResponse("Sure! Here is the JSON you asked for.", 5)))
			return
		}
		w.Write([]byte(completionResponse(`{"valid": false, "issues": ["tone"]}`, 8)))
	})

	var out struct {
		Valid  bool     `json:"valid"`
		Issues []string `json:"issues"`
	}
	tokens, err := client.GenerateJSON(context.Background(), "sys", "user", `{"valid": bool, "issues": [string]}`, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 13, tokens)
	assert.False(t, out.Valid)
	assert.Equal(t, []string{"tone"}, out.Issues)
}

func TestGenerateJSON_ParseFailureAfterReprompt(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("still not json", 5)))
	})

	var out map[string]interface{}
	_, err := client.GenerateJSON(context.Background(), "sys", "user", "{}", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, er.ErrLLMParse))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
}
