// Package llm wraps the OpenAI-compatible chat/embedding transport used for
// answer generation. The pipeline only needs "submit messages, get a token
// stream"; retrying and breaker logic live here so callers stay simple.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/metrics"
	"github.com/docsense/backend/pkg/circuitbreaker"
	"github.com/docsense/backend/pkg/logger"
	"github.com/docsense/backend/pkg/retry"
)

// ErrRateLimited marks upstream throttling. It is surfaced verbatim to the
// caller and never retried automatically.
var ErrRateLimited = errors.New("llm transport rate limited")

// Message is the role/content pair sent to the model. Citation metadata from
// prior turns must never appear here; the transport protocol only accepts
// these two fields.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// GenParams are the per-request generation knobs chosen by the prompt builder.
type GenParams struct {
	MaxTokens   int
	Temperature float32
}

// StreamToken is one increment of a streamed completion. Tokens arrive in
// strict FIFO order; Err is set on the final token when the stream failed.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	cb             *circuitbreaker.Breaker
	retryPolicy    retry.Policy
}

func NewClient(baseURL, apiKey, model, embeddingModel string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	policy := retry.DefaultPolicy()
	policy.Logger = logger.GetLogger()
	// Retrying against a throttle only compounds it.
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, ErrRateLimited)
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: embeddingModel,
		timeout:        timeout,
		cb:             cb,
		retryPolicy:    policy,
	}
}

// Complete runs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, messages []Message, params GenParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryPolicy, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    toOpenAI(messages),
				Temperature: params.Temperature,
				MaxTokens:   params.MaxTokens,
			})
			if err != nil {
				return classify(err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}
			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// StreamCompletion opens a streaming completion and returns its token
// channel. The channel is closed after the final token; abandoning it cancels
// the producer via ctx. Opening the stream is guarded by the breaker, but
// once tokens are flowing no retry happens here, since a half-delivered
// answer cannot be re-sent.
func (c *Client) StreamCompletion(ctx context.Context, messages []Message, params GenParams) (<-chan StreamToken, error) {
	var stream *openai.ChatCompletionStream

	err := c.cb.Execute(ctx, func() error {
		var openErr error
		stream, openErr = c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    toOpenAI(messages),
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
			Stream:      true,
		})
		if openErr != nil {
			return classify(openErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamToken, 64)

	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- StreamToken{Done: true}
				return
			}
			if err != nil {
				ch <- StreamToken{Done: true, Err: classify(err)}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case ch <- StreamToken{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// GenerateEmbedding embeds a single text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embedding []float32
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryPolicy, func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return classify(err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response is empty")
			}
			metrics.LLMTokensUsed.WithLabelValues(c.embeddingModel, "embedding").Add(float64(resp.Usage.PromptTokens))
			embedding = append([]float32(nil), resp.Data[0].Embedding...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

// GenerateBatchEmbeddings embeds texts in batches of 100.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	const batchSize = 100
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryPolicy, func() error {
				resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return classify(err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}
				metrics.LLMTokensUsed.WithLabelValues(c.embeddingModel, "embedding").Add(float64(resp.Usage.PromptTokens))
				for _, data := range resp.Data {
					embeddings = append(embeddings, append([]float32(nil), data.Embedding...))
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classify maps transport errors onto the pipeline's taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
