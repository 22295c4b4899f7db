package workflow

import (
	"context"
	"log/slog"

	"briefbot/internal/domain"
)

// placeholderTitle is used when a URL has no stored article yet; the AI is
// still asked to work from the URL alone.
const placeholderTitle = "Fetching title..."

// Resolver looks up article metadata by URL, falling back to a placeholder.
// Absence is not an error: a link nobody summarized before still gets a
// best-effort summary.
type Resolver struct {
	articles domain.ArticleStore
	logger   *slog.Logger
}

func NewResolver(articles domain.ArticleStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{articles: articles, logger: logger}
}

// Resolve returns the stored article for url, or a placeholder. Store errors
// degrade to the placeholder as well: a summary from URL context alone beats
// no summary.
func (r *Resolver) Resolve(ctx context.Context, url string) domain.Article {
	art, err := r.articles.GetArticleByURL(ctx, url)
	if err != nil {
		r.logger.Warn("article lookup failed, using placeholder", "url", url, "err", err)
	}
	if art != nil {
		return *art
	}
	return domain.Article{
		URL:   url,
		Title: placeholderTitle,
	}
}
