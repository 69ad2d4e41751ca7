package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindle_digest/internal/domain"
)

const summaryFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Summaries</title>
    <item>
      <title>Short</title>
      <link>%[1]s/article</link>
      <description>&lt;p&gt;A teaser. Read more...&lt;/p&gt;</description>
      <pubDate>Tue, 10 Mar 2026 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Gone</title>
      <link>%[1]s/missing</link>
      <description>Another teaser.</description>
      <pubDate>Tue, 10 Mar 2026 13:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func articlePage() string {
	var paragraphs strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&paragraphs, `<p>Paragraph %d of the full story. The reporter spent weeks on the ground, `+
			`talking to residents, officials and engineers about how the bridge was rebuilt after the flood, `+
			`and what it cost the town in money, time and patience.</p>`, i)
	}
	return `<!DOCTYPE html><html><head><title>The full story</title></head><body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article><h1>The full story</h1>` + paragraphs.String() + `</article>
<footer>Copyright</footer>
</body></html>`
}

type articleSite struct {
	srv           *httptest.Server
	articleFetches atomic.Int32
	userAgent     atomic.Value
}

func newArticleSite(t *testing.T) *articleSite {
	t.Helper()
	site := &articleSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, summaryFeed, site.srv.URL)
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		site.articleFetches.Add(1)
		site.userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage())
	})
	mux.HandleFunc("/missing", http.NotFound)
	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

func fullTextSource() *Source {
	return New(Config{
		Timeout:     2 * time.Second,
		UserAgent:   "KindleDigest/test",
		MaxAttempts: 1,
		FullText:    true,
	}, testLogger())
}

func TestFetch_FullTextReplacesSummary(t *testing.T) {
	site := newArticleSite(t)

	posts, err := fullTextSource().Fetch(context.Background(), domain.FeedSource(site.srv.URL+"/feed"), testWindow)

	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Contains(t, posts[0].Body, "Paragraph 1 of the full story")
	assert.Contains(t, posts[0].Body, "Paragraph 6 of the full story")
	assert.NotContains(t, posts[0].Body, "Read more")
	assert.Equal(t, "KindleDigest/test", site.userAgent.Load())
}

func TestFetch_FullTextKeepsSummaryWhenPageFails(t *testing.T) {
	site := newArticleSite(t)

	posts, err := fullTextSource().Fetch(context.Background(), domain.FeedSource(site.srv.URL+"/feed"), testWindow)

	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Another teaser.", posts[1].Body)
}

func TestFetch_FullTextDisabled(t *testing.T) {
	site := newArticleSite(t)

	posts, err := newTestSource().Fetch(context.Background(), domain.FeedSource(site.srv.URL+"/feed"), testWindow)

	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "<p>A teaser. Read more...</p>", posts[0].Body)
	assert.Equal(t, int32(0), site.articleFetches.Load())
}

func TestIsSummary(t *testing.T) {
	assert.True(t, isSummary(""))
	assert.True(t, isSummary("<p>A teaser.</p>"))
	assert.False(t, isSummary("<p>"+strings.Repeat("word ", 200)+"</p>"))
}
