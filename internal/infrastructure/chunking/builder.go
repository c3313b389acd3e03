// Package chunking packs repository files into token-bounded chunks.
package chunking

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/infrastructure/extractor/plaintext"
)

const DefaultMaxTokens = 950_000

const sectionSeparator = "\n"

// DefaultExcludeDirs are version-control and build-cache directories never walked.
var DefaultExcludeDirs = []string{
	".git", ".hg", ".svn", ".bzr",
	"__pycache__", ".mypy_cache", ".pytest_cache", ".ruff_cache", ".tox",
}

type Builder struct {
	estimator ports.TokenEstimator
	exclude   map[string]struct{}
}

func NewBuilder(estimator ports.TokenEstimator, excludeDirs []string) *Builder {
	if len(excludeDirs) == 0 {
		excludeDirs = DefaultExcludeDirs
	}
	exclude := make(map[string]struct{}, len(excludeDirs))
	for _, name := range excludeDirs {
		name = strings.TrimSpace(name)
		if name != "" {
			exclude[name] = struct{}{}
		}
	}
	return &Builder{estimator: estimator, exclude: exclude}
}

// Excluded reports whether a directory with this base name is skipped.
func (b *Builder) Excluded(name string) bool {
	_, ok := b.exclude[name]
	return ok
}

// Chunks lazily walks root and yields sealed chunks in visitation order. Calling it
// again restarts the walk. A fatal repository error is yielded once as the last element.
func (b *Builder) Chunks(ctx context.Context, root string, maxTokens int) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		if maxTokens <= 0 {
			maxTokens = DefaultMaxTokens
		}
		resolved, err := resolveRoot(root)
		if err != nil {
			yield(domain.Chunk{}, err)
			return
		}

		p := &packer{budget: maxTokens, estimator: b.estimator}
		stopped := false
		walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == resolved {
					return err
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != resolved && b.Excluded(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !regularFile(path, d) {
				return nil
			}

			text, err := plaintext.ReadFile(path)
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(resolved, path)
			if err != nil {
				return nil
			}
			file := domain.SourceFile{Path: filepath.ToSlash(rel), Content: text}
			if sealed, ok := p.add(file); ok {
				if !yield(sealed, nil) {
					stopped = true
					return filepath.SkipAll
				}
			}
			return nil
		})
		if stopped {
			return
		}
		if walkErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(walkErr, ctxErr) {
				yield(domain.Chunk{}, ctxErr)
				return
			}
			yield(domain.Chunk{}, domain.WrapError(domain.ErrRepositoryUnavailable, "walk repository", walkErr))
			return
		}
		if last, ok := p.seal(); ok {
			yield(last, nil)
		}
	}
}

// Build collects every chunk of root.
func (b *Builder) Build(ctx context.Context, root string, maxTokens int) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for chunk, err := range b.Chunks(ctx, root, maxTokens) {
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func resolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", domain.WrapError(domain.ErrRepositoryUnavailable, "resolve root", errors.New("empty root path"))
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", domain.WrapError(domain.ErrRepositoryUnavailable, "resolve root", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", domain.WrapError(domain.ErrRepositoryUnavailable, "stat root", err)
	}
	if !info.IsDir() {
		return "", domain.WrapError(domain.ErrRepositoryUnavailable, "stat root", fmt.Errorf("%s is not a directory", root))
	}
	return resolved, nil
}

// regularFile reports whether path is a regular file, following a symlink. Pipes,
// sockets and devices can block on open and are never read.
func regularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Section renders one file the way it appears inside a chunk.
func Section(relPath, content string) string {
	return domain.FileDelimiterPrefix + relPath + "\n" + content
}

type packer struct {
	budget    int
	estimator ports.TokenEstimator

	index    int
	sections []string
	files    []string
	tokens   int
}

// add appends a file, first sealing the open chunk when the file would push it over
// budget. A file that alone exceeds the budget still gets a chunk of its own. The
// separator joining a section to the one before it is charged to that section.
func (p *packer) add(file domain.SourceFile) (domain.Chunk, bool) {
	section := Section(file.Path, file.Content)
	cost := p.estimator.Estimate(sectionSeparator + section)

	var sealed domain.Chunk
	var ok bool
	if len(p.files) > 0 && p.tokens+cost > p.budget {
		sealed, ok = p.seal()
	}
	if len(p.files) == 0 {
		cost = p.estimator.Estimate(section)
	}
	p.sections = append(p.sections, section)
	p.files = append(p.files, file.Path)
	p.tokens += cost
	return sealed, ok
}

func (p *packer) seal() (domain.Chunk, bool) {
	if len(p.files) == 0 {
		return domain.Chunk{}, false
	}
	chunk := domain.Chunk{
		Index:  p.index,
		Files:  p.files,
		Text:   strings.Join(p.sections, sectionSeparator),
		Tokens: p.tokens,
	}
	p.index++
	p.sections = nil
	p.files = nil
	p.tokens = 0
	return chunk, true
}
