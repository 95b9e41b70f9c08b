package gemini

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/logger"
)

// Client is the Gemini oracle used to fill content gaps. Text calls return
// free-form text the caller must coerce; image calls return raw image bytes.
type Client interface {
	GenerateText(ctx context.Context, system string, user string, model string) (string, error)
	GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error)
}

type client struct {
	log        *logger.Logger
	gc         *genai.Client
	textModel  string
	imageModel string
	timeout    time.Duration
	maxRetries int
}

// NewClient constructs the single shared Gemini client. Connection state is
// derived from the environment exactly once, at process start.
func NewClient(ctx context.Context, log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	textModel := strings.TrimSpace(os.Getenv("GEMINI_TEXT_MODEL"))
	if textModel == "" {
		textModel = "gemini-2.0-flash-lite"
	}
	imageModel := strings.TrimSpace(os.Getenv("GEMINI_IMG_MODEL"))
	if imageModel == "" {
		imageModel = "gemini-2.0-flash-preview-image-generation"
	}

	timeoutSec := 120
	if v := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	maxRetries := 3
	if v := strings.TrimSpace(os.Getenv("GEMINI_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	gc, err := genai.NewClient(ctxutil.Default(ctx), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	return &client{
		log:        log.With("service", "GeminiClient"),
		gc:         gc,
		textModel:  textModel,
		imageModel: imageModel,
		timeout:    time.Duration(timeoutSec) * time.Second,
		maxRetries: maxRetries,
	}, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string, model string) (string, error) {
	model = c.resolveModel(model, c.textModel)
	prompt := user
	if strings.TrimSpace(system) != "" {
		prompt = system + "\n\n" + user
	}

	resp, err := c.generate(ctx, model, prompt, []string{"TEXT"})
	if err != nil {
		return "", err
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini: empty text response from %s", model)
	}
	return text, nil
}

func (c *client) GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error) {
	model = c.resolveModel(model, c.imageModel)

	resp, err := c.generate(ctx, model, prompt, []string{"TEXT", "IMAGE"})
	if err != nil {
		return nil, err
	}
	data := firstImage(resp)
	if len(data) == 0 {
		return nil, fmt.Errorf("gemini: no image data returned by %s", model)
	}
	return data, nil
}

func (c *client) generate(ctx context.Context, model string, prompt string, modalities []string) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{ResponseModalities: modalities}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}
		resp, err := c.gc.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			lastErr = err
			c.log.Warn("gemini call failed", "model", model, "attempt", attempt+1, "error", err)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("gemini generate (%s): %w", model, lastErr)
}

func (c *client) resolveModel(requested, fallback string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return fallback
	}
	return requested
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if t := strings.TrimSpace(part.Text); t != "" {
				return t
			}
		}
	}
	return ""
}

func firstImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
