package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kindle_digest/internal/domain"
)

type Config struct {
	PandocPath string

	// EbookConvertPath empty skips the EPUB -> MOBI -> EPUB round trip.
	EbookConvertPath string
	CoverPath        string
	StylesheetPath   string
	WorkDir          string
}

// Packager turns an issue into an EPUB ready for a Kindle.
type Packager struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(cfg Config, runner Runner, logger *slog.Logger) *Packager {
	return &Packager{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "packager"),
	}
}

var unsafeFileChars = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// ArtifactName is the delivered file name, "<title> - YYYY-MM-DD.epub".
func ArtifactName(issue domain.Issue) string {
	return fmt.Sprintf("%s - %s.epub", unsafeFileChars.Replace(issue.Title), issue.Date.Format("2006-01-02"))
}

// Package renders the issue and converts it. On failure every intermediate
// file is removed and the error wraps domain.ErrPackaging.
func (p *Packager) Package(ctx context.Context, issue domain.Issue) (*domain.Artifact, error) {
	art := &domain.Artifact{}

	if err := p.build(ctx, issue, art); err != nil {
		if cerr := p.Cleanup(art); cerr != nil {
			p.logger.Warn("cleanup after failed packaging", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}

	p.logger.Info("issue packaged", "path", art.Path, "posts", len(issue.Posts))
	return art, nil
}

func (p *Packager) build(ctx context.Context, issue domain.Issue, art *domain.Artifact) error {
	if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	stamp := issue.Date.Format("2006-01-02")
	final := filepath.Join(p.cfg.WorkDir, ArtifactName(issue))

	stylesheet, err := p.readStylesheet()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := RenderHTML(&buf, issue, stylesheet, issue.Date.Location()); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	htmlPath := filepath.Join(p.cfg.WorkDir, stamp+".html")
	art.Files = append(art.Files, htmlPath)
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}

	coverPath, err := p.cover(issue, stamp, art)
	if err != nil {
		return err
	}

	epubPath := final
	if p.cfg.EbookConvertPath != "" {
		epubPath = filepath.Join(p.cfg.WorkDir, stamp+".epub")
	}

	args := []string{
		"--from=html",
		"--to=epub3",
		"--standalone",
		"--toc",
		"--toc-depth=1",
		"--metadata", "title=" + issue.Title,
		"--output", epubPath,
	}
	if coverPath != "" {
		args = append(args, "--epub-cover-image="+coverPath)
	}
	args = append(args, htmlPath)

	art.Files = append(art.Files, epubPath)
	if err := p.runner.Run(ctx, p.cfg.PandocPath, args...); err != nil {
		return fmt.Errorf("pandoc: %w", err)
	}

	if p.cfg.EbookConvertPath != "" {
		mobiPath := filepath.Join(p.cfg.WorkDir, stamp+".mobi")
		art.Files = append(art.Files, mobiPath)
		if err := p.runner.Run(ctx, p.cfg.EbookConvertPath, epubPath, mobiPath); err != nil {
			return fmt.Errorf("convert to mobi: %w", err)
		}

		art.Files = append(art.Files, final)
		if err := p.runner.Run(ctx, p.cfg.EbookConvertPath, mobiPath, final); err != nil {
			return fmt.Errorf("convert to epub: %w", err)
		}
	}

	if _, err := os.Stat(final); err != nil {
		return fmt.Errorf("converter produced no output: %w", err)
	}

	art.Path = final
	return nil
}

func (p *Packager) readStylesheet() (string, error) {
	if p.cfg.StylesheetPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(p.cfg.StylesheetPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read stylesheet: %w", err)
	}
	return string(data), nil
}

// cover draws the dated cover and returns its path, or "" when no base
// cover is configured or present.
func (p *Packager) cover(issue domain.Issue, stamp string, art *domain.Artifact) (string, error) {
	if p.cfg.CoverPath == "" {
		return "", nil
	}
	if _, err := os.Stat(p.cfg.CoverPath); errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("cover image missing, packaging without cover", "path", p.cfg.CoverPath)
		return "", nil
	}

	out := filepath.Join(p.cfg.WorkDir, stamp+"-cover.png")
	art.Files = append(art.Files, out)
	if err := DrawCover(p.cfg.CoverPath, out, issue.Date.Format(coverDateLayout)); err != nil {
		return "", err
	}
	return out, nil
}

// Cleanup removes every file written for the artifact. Files that were never
// created are ignored.
func (p *Packager) Cleanup(art *domain.Artifact) error {
	if art == nil {
		return nil
	}
	var errs []error
	for _, f := range art.Files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
