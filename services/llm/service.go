package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/tracing"
)

const (
	defaultTimeout = 60 * time.Second
	maxAttempts    = 3
)

type Config struct {
	BaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	APIKey  string `env:"LLM_API_KEY"`
	Model   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
}

type llmService struct {
	config      *Config
	httpClient  *http.Client
	totalTokens atomic.Int64
}

func NewLLMService(config *Config) interfaces.LLMClient {
	return &llmService{
		config: config,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *llmService) Generate(ctx context.Context, system, user string, opts interfaces.GenerateOptions) (string, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "llmService.Generate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	text, tokens, err := s.complete(ctx, system, user, opts)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", tokens, err
	}
	span.SetTag("tokens.used", tokens)
	return text, tokens, nil
}

func (s *llmService) GenerateJSON(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "llmService.GenerateJSON")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	jsonSystem := system + "\n\nRespond with a single JSON object matching: " + schemaHint +
		"\nNo prose, no markdown fences, JSON only."

	text, tokens, err := s.complete(ctx, jsonSystem, user, interfaces.GenerateOptions{Temperature: 0})
	if err != nil {
		tracing.TraceErr(span, err)
		return tokens, err
	}

	if err := json.Unmarshal([]byte(stripFences(text)), out); err == nil {
		span.SetTag("tokens.used", tokens)
		return tokens, nil
	}

	// one strict re-prompt before giving up
	span.SetTag("reprompted", true)
	retryUser := "Your previous output was not valid JSON. Return ONLY a valid JSON object matching: " +
		schemaHint + "\n\nOriginal request:\n" + user
	text, retryTokens, err := s.complete(ctx, jsonSystem, retryUser, interfaces.GenerateOptions{Temperature: 0})
	tokens += retryTokens
	if err != nil {
		tracing.TraceErr(span, err)
		return tokens, err
	}

	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		parseErr := errors.Wrap(er.ErrLLMParse, err.Error())
		tracing.TraceErr(span, parseErr)
		return tokens, parseErr
	}

	span.SetTag("tokens.used", tokens)
	return tokens, nil
}

func (s *llmService) TotalTokens() int64 {
	return s.totalTokens.Load()
}

func (s *llmService) complete(ctx context.Context, system, user string, opts interfaces.GenerateOptions) (string, int, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", 0, errors.Wrap(err, "marshal request")
	}

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    20 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
		}

		text, tokens, retryable, err := s.doRequest(ctx, payload)
		if err == nil {
			s.totalTokens.Add(int64(tokens))
			return text, tokens, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return "", 0, er.NewExternalServiceError("llm", lastErr)
}

func (s *llmService) doRequest(ctx context.Context, payload []byte) (string, int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, false, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, true, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, true, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", 0, true, fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, false, fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, false, errors.Wrap(err, "unmarshal response")
	}
	if len(parsed.Choices) == 0 {
		return "", 0, false, errors.New("llm backend returned no choices")
	}

	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, false, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}

// stripFences removes surrounding markdown code fences from model output.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
