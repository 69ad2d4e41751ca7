package packager

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"kindle_digest/internal/domain"
)

var issueTemplate = template.Must(template.New("issue").Funcs(template.FuncMap{
	"niceDate": func(t time.Time) string { return t.Format("2 January 2006") },
	"niceTime": func(t time.Time) string { return t.Format("3:04 pm") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<meta name="viewport" content="width=device-width, initial-scale=1.0" />
<title>{{.Title}}</title>
{{- if .Stylesheet}}
<style>
{{.Stylesheet}}
</style>
{{- end}}
</head>
<body>
{{- range .Posts}}
<article>
  <h1><a href="{{.Link}}">{{.Title}}</a></h1>
  <p><small>By {{.Author}} for <i>{{.Blog}}</i>, on {{niceDate .PublishedAt}} at {{niceTime .PublishedAt}}.</small></p>
  {{.Body}}
</article>
{{- end}}
</body>
</html>
`))

type renderedPost struct {
	Title       string
	Link        string
	Author      string
	Blog        string
	PublishedAt time.Time
	Body        template.HTML
}

type renderedIssue struct {
	Title      string
	Stylesheet template.CSS
	Posts      []renderedPost
}

// RenderHTML writes the issue as one HTML document, posts in the order
// given. Post times are shown in loc.
func RenderHTML(w io.Writer, issue domain.Issue, stylesheet string, loc *time.Location) error {
	data := renderedIssue{
		Title:      issue.Title,
		Stylesheet: template.CSS(stylesheet),
		Posts:      make([]renderedPost, 0, len(issue.Posts)),
	}

	for _, p := range issue.Posts {
		body, err := sanitizeBody(p.Body, p.Link)
		if err != nil {
			return fmt.Errorf("sanitize %s: %w", p.Link, err)
		}
		data.Posts = append(data.Posts, renderedPost{
			Title:       p.Title,
			Link:        p.Link,
			Author:      p.Author,
			Blog:        p.Blog,
			PublishedAt: p.PublishedAt.In(loc),
			Body:        template.HTML(body),
		})
	}

	return issueTemplate.Execute(w, data)
}

// sanitizeBody strips active content from a post body and makes relative
// links absolute against the post link.
func sanitizeBody(body, link string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, iframe, object, embed, form").Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			n.Attr = dropEventHandlers(n.Attr)
		}
	})

	if base, err := url.Parse(link); err == nil && base.IsAbs() {
		resolve := func(attr string) func(int, *goquery.Selection) {
			return func(_ int, s *goquery.Selection) {
				v, _ := s.Attr(attr)
				if ref, err := url.Parse(strings.TrimSpace(v)); err == nil {
					s.SetAttr(attr, base.ResolveReference(ref).String())
				}
			}
		}
		doc.Find("[href]").Each(resolve("href"))
		doc.Find("[src]").Each(resolve("src"))
	}

	return doc.Find("body").Html()
}

func dropEventHandlers(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		if strings.HasPrefix(strings.ToLower(a.Key), "on") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
