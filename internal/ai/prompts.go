package ai

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"briefbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// Prompts holds the templates for the two generation operations. Templates
// see the article fields ({{.Title}}, {{.URL}}, {{.Description}}) and, for
// answers, {{.Question}}.
type Prompts struct {
	Summary string `yaml:"summary"`
	Answer  string `yaml:"answer"`
}

const defaultSummaryPrompt = `Write a detailed, practical summary of the following technical article.

Cover these angles:
- The core content of the article (3-4 sentences)
- The points that matter most to working engineers
- Caveats for adopting or implementing it
- Related technology and assumed background knowledge

Article:
Title: {{.Title}}
Description: {{.Description}}
URL: {{.URL}}

Detailed summary:`

const defaultAnswerPrompt = `Answer the following question about a technical article accurately and clearly.

Article:
Title: {{.Title}}
Description: {{.Description}}
URL: {{.URL}}

Question: {{.Question}}

Answer format:
- A concise, accurate answer
- Additional explanation where it helps
- Related technical context if relevant

Answer:`

func DefaultPrompts() Prompts {
	return Prompts{
		Summary: defaultSummaryPrompt,
		Answer:  defaultAnswerPrompt,
	}
}

// LoadPrompts reads a YAML prompt file and merges it over the defaults.
// Missing keys keep their default; an empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("cannot read prompt file %s: %w", path, err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("cannot parse prompt file %s: %w", path, err)
	}

	if strings.TrimSpace(override.Summary) != "" {
		prompts.Summary = override.Summary
	}
	if strings.TrimSpace(override.Answer) != "" {
		prompts.Answer = override.Answer
	}
	return prompts, nil
}

type promptData struct {
	domain.Article
	Question string
}

func renderPrompt(tmpl string, data promptData) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute prompt template: %w", err)
	}
	return sb.String(), nil
}
