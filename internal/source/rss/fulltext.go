package rss

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"kindle_digest/internal/domain"
)

// Feed bodies with less visible text than this are treated as summaries.
const minFullTextRunes = 500

// gatherFullText swaps summary bodies for the article text of the linked
// page. A page that cannot be fetched or parsed leaves the feed body as is.
func (s *Source) gatherFullText(ctx context.Context, posts []domain.Post) {
	for i := range posts {
		if ctx.Err() != nil {
			return
		}

		p := &posts[i]
		if p.Link == "" || !isSummary(p.Body) {
			continue
		}

		content, err := s.fetchArticle(ctx, p.Link)
		if err != nil {
			s.logger.Warn("full text unavailable, keeping feed body",
				"link", p.Link,
				"error", err,
			)
			continue
		}
		p.Body = content
	}
}

func (s *Source) fetchArticle(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	resp, err := s.get(ctx, link, "text/html, application/xhtml+xml")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return "", errors.New("no article content")
	}

	s.logger.Debug("extracted full text",
		"link", link,
		"title", article.Title,
		"content_length", len(article.Content),
	)
	return article.Content, nil
}

func isSummary(body string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(doc.Text())) < minFullTextRunes
}
