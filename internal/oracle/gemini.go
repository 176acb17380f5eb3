package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"

	"smartshop/internal/logging"
)

const defaultModel = "gemini-2.0-flash"

// Gemini is the production Client backed by Google's Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini builds a Gemini client. An empty apiKey is not an error; the
// returned client reports Configured() == false and engines fall back.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		logging.Oracle("No API key present, oracle disabled")
		return Unconfigured(), nil
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	logging.Oracle("Oracle configured with model %s, timeout %s", model, timeout)
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) Configured() bool { return true }

// Complete performs a single bounded completion attempt. A timeout is
// applied only when the caller did not already set a deadline.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryOracle, "complete")
	result, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		nil,
	)
	timer.Stop()
	if err != nil {
		classified := classify(err)
		logging.OracleWarn("Completion failed (%v): %v", classified, err)
		return "", classified
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		logging.OracleWarn("Completion returned empty text")
		return "", ErrUnknown
	}
	logging.OracleDebug("Completion returned %d bytes", len(text))
	return text, nil
}

// classify folds upstream errors into the three-way taxonomy. The original
// cause stays in the logs only; callers see the sentinel.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return ErrUnavailable
		}
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return ErrUnconfigured
		}
	}
	return ErrUnknown
}
