// Package ai implements the summarization collaborator on the Gemini
// generateContent REST API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"briefbot/internal/domain"
	"briefbot/internal/metrics"
)

const (
	defaultAPIBase     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.5-flash"
	defaultHTTPTimeout = 45 * time.Second

	summaryFallback = "Sorry, the detailed summary could not be generated right now."
	answerFallback  = "Sorry, the answer could not be generated right now."
)

// Gemini implements domain.Summarizer. Both operations swallow internal
// failures and return a user-facing fallback string so workflows always have
// something to post.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	prompts Prompts
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Prompts Prompts
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Prompts.Summary == "" {
		cfg.Prompts.Summary = DefaultPrompts().Summary
	}
	if cfg.Prompts.Answer == "" {
		cfg.Prompts.Answer = DefaultPrompts().Answer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		prompts: cfg.Prompts,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

// Summarize generates a detailed summary for the article.
func (g *Gemini) Summarize(ctx context.Context, art domain.Article) string {
	prompt, err := renderPrompt(g.prompts.Summary, promptData{Article: art})
	if err != nil {
		g.logger.Error("summary prompt render failed", "err", err)
		return summaryFallback
	}
	text, err := g.generate(ctx, prompt)
	if err != nil {
		g.logger.Error("summary generation failed", "url", art.URL, "err", err)
		return summaryFallback
	}
	return text
}

// Answer generates an answer to a question about the article.
func (g *Gemini) Answer(ctx context.Context, art domain.Article, question string) string {
	prompt, err := renderPrompt(g.prompts.Answer, promptData{Article: art, Question: question})
	if err != nil {
		g.logger.Error("answer prompt render failed", "err", err)
		return answerFallback
	}
	text, err := g.generate(ctx, prompt)
	if err != nil {
		g.logger.Error("answer generation failed", "url", art.URL, "err", err)
		return answerFallback
	}
	return text
}

type genRequest struct {
	Contents []genContent `json:"contents"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text string `json:"text"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(genRequest{
		Contents: []genContent{{Parts: []genPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, g.model)
	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)
		return req, nil
	}

	metrics.AIRequestsTotal.Inc()
	start := time.Now()
	resp, err := g.sendWithRetry(ctx, buildReq)
	metrics.AILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, string(raw))
	}

	var out genResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
