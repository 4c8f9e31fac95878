package reasoning

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"deduction/config"
)

// Client wraps the Gemini API behind a rate limiter and a caller-side
// timeout. Requests are not cancellable mid-flight upstream, so the timeout
// is how callers bound their exposure; they treat it like any other failure.
type Client struct {
	genai   *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *log.Logger

	strictDecodes  atomic.Int64
	lenientDecodes atomic.Int64
}

// NewClient builds a reasoning client from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[REASONING] ", log.LstdFlags)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		genai:   gc,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

// Generate sends a prompt and returns the raw text response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// GenerateJSON sends a prompt expecting a JSON response and decodes it into
// out via the strict-then-lenient two-stage parse.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, out any) error {
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	raw, err := c.generate(ctx, prompt, genConfig)
	if err != nil {
		return err
	}

	stage, err := DecodeJSON(raw, out)
	if err != nil {
		return err
	}
	switch stage {
	case StageStrict:
		c.strictDecodes.Add(1)
	case StageLenient:
		c.lenientDecodes.Add(1)
		c.logger.Printf("[DECODE_LENIENT] recovered JSON from non-conformant response (%d bytes)", len(raw))
	}
	return nil
}

func (c *Client) generate(ctx context.Context, prompt string, genConfig *genai.GenerateContentConfig) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.genai.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		genConfig)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// DecodeStats reports how many JSON responses parsed strictly versus through
// the lenient recovery pass.
func (c *Client) DecodeStats() (strict, lenient int64) {
	return c.strictDecodes.Load(), c.lenientDecodes.Load()
}
