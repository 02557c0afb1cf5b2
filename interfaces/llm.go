package interfaces

import "context"

// GenerateOptions tune a single text-generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMClient wraps the hosted text-generation backend with retry and token
// accounting. GenerateJSON parses the model output into out; implementations
// re-prompt once for strict JSON before failing.
type LLMClient interface {
	Generate(ctx context.Context, system, user string, opts GenerateOptions) (text string, tokensUsed int, err error)
	GenerateJSON(ctx context.Context, system, user, schemaHint string, out interface{}) (tokensUsed int, err error)
	// TotalTokens is the process-wide counter, reset at process start.
	TotalTokens() int64
}
