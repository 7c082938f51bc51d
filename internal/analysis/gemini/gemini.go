// Package gemini implements analysis.Generator on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/memohai/archivist/internal/analysis"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini api key is required")

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the Gemini connection settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a Gemini-backed generator.
type Client struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Gemini client.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newWithModels(log, client.Models, cfg), nil
}

func newWithModels(log *slog.Logger, models contentGenerator, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		models:  models,
		model:   strings.TrimSpace(cfg.Model),
		timeout: cfg.Timeout,
		logger:  log.With(slog.String("adapter", "gemini")),
	}
}

// Generate sends the parts as a single user turn with every harm category set
// to BLOCK_NONE.
func (c *Client) Generate(ctx context.Context, parts []analysis.Part) (analysis.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	content := genai.NewContentFromParts(toGenaiParts(parts), genai.RoleUser)
	resp, err := c.models.GenerateContent(ctx, c.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		SafetySettings: safetySettings(),
	})
	if err != nil {
		return analysis.Response{}, fmt.Errorf("gemini generate: %w", err)
	}
	out := interpret(resp)
	c.logger.Debug("gemini response",
		slog.String("model", c.model),
		slog.Bool("blocked", out.Blocked),
		slog.Int("chars", len(out.Text)),
	)
	return out, nil
}

func safetySettings() []*genai.SafetySetting {
	settings := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

func toGenaiParts(parts []analysis.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			out = append(out, genai.NewPartFromText(p.Text))
			continue
		}
		out = append(out, genai.NewPartFromBytes(p.Data, p.MIMEType))
	}
	return out
}

// interpret reads the text of the first candidate. It does not use
// resp.Text(), which hides why a response came back empty.
func interpret(resp *genai.GenerateContentResponse) analysis.Response {
	if resp == nil {
		return analysis.Response{Blocked: true, BlockReason: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return analysis.Response{Blocked: true, BlockReason: string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return analysis.Response{Blocked: true, BlockReason: "no candidates"}
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		reason := string(cand.FinishReason)
		if reason == "" {
			reason = "empty content"
		}
		return analysis.Response{Blocked: true, BlockReason: reason}
	}
	if cand.FinishReason == genai.FinishReasonSafety {
		return analysis.Response{Blocked: true, BlockReason: string(cand.FinishReason)}
	}
	return analysis.Response{Text: text}
}
