package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kirillkom/codesearch/internal/bootstrap"
	"github.com/kirillkom/codesearch/internal/config"
	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/usecase"
)

type searchFlags struct {
	json         bool
	files        bool
	concurrency  int
	model        string
	costEstimate bool
	root         string
	maxTokens    int
	noCache      bool
	plain        bool
}

func (f *searchFlags) register(cmd *cobra.Command, withEstimate bool) {
	flags := cmd.Flags()
	flags.BoolVar(&f.json, "json", false, "print machine-readable JSON")
	flags.BoolVar(&f.files, "files", false, "print only the paths of matching files")
	flags.IntVar(&f.concurrency, "concurrency", 0, "parallel backend calls (default from config)")
	flags.StringVar(&f.model, "model", "", "model to ask (default from config)")
	if withEstimate {
		flags.BoolVar(&f.costEstimate, "cost-estimate", false, "report the token volume and exit without querying")
	}
	flags.StringVar(&f.root, "root", ".", "repository root to search")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "token budget per chunk (default from config)")
	flags.BoolVar(&f.noCache, "no-cache", false, "neither read nor write the response cache")
	flags.BoolVar(&f.plain, "plain", false, "print the answer without terminal styling")
}

// apply folds flag overrides into the loaded configuration.
func (f *searchFlags) apply(cfg config.Config) config.Config {
	if f.noCache {
		cfg.CacheBackend = bootstrap.CacheNone
	}
	if f.model != "" {
		cfg.LLMModel = f.model
	}
	if f.concurrency > 0 {
		cfg.SearchConcurrency = f.concurrency
	}
	if f.maxTokens > 0 {
		cfg.SearchMaxTokens = f.maxTokens
	}
	return cfg
}

func (f *searchFlags) request(question string) domain.SearchRequest {
	return domain.SearchRequest{
		Root:        f.root,
		Question:    question,
		Model:       f.model,
		Concurrency: f.concurrency,
		MaxTokens:   f.maxTokens,
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "search QUESTION...",
		Short: "Answer a question about the repository",
		Example: `  codesearch search "where are retries configured?"
  codesearch search --files --root ./service "who publishes search jobs"
  codesearch search --cost-estimate "anything"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.concurrency < 0 {
				return fmt.Errorf("--concurrency must be positive, got %d", flags.concurrency)
			}
			question := strings.Join(args, " ")

			sess, closeFn, err := c.open(cmd.Context(), flags.apply(c.cfg))
			if err != nil {
				return err
			}
			defer closeFn()

			if flags.costEstimate {
				estimate, err := sess.Estimate(cmd.Context(), flags.root, flags.maxTokens)
				if err != nil {
					return err
				}
				return writeEstimate(c.stdout, estimate, flags.json)
			}

			return runOnce(cmd.Context(), c.stdout, sess, flags.request(question), flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func writeEstimate(w io.Writer, estimate *domain.CostEstimate, asJSON bool) error {
	if asJSON {
		return writeJSON(w, estimate)
	}
	_, err := fmt.Fprintf(w, "Would send ~%d tokens in %d chunks (%d files)\n",
		estimate.Tokens, estimate.Chunks, estimate.Files)
	return err
}

func writeReport(w io.Writer, report *domain.SearchReport, flags searchFlags) error {
	summary := usecase.Summarize(report)
	switch {
	case flags.files && flags.json:
		return writeJSON(w, summary.Matches)
	case flags.files:
		for _, name := range summary.Matches {
			if _, err := fmt.Fprintln(w, name); err != nil {
				return err
			}
		}
		return nil
	case flags.json:
		return writeJSON(w, summary)
	case flags.plain || summary.NothingFound:
		_, err := fmt.Fprintln(w, strings.TrimRight(summary.Answer, "\n"))
		return err
	default:
		_, err := io.WriteString(w, renderMarkdown(summary.Answer))
		return err
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMarkdown styles an answer for the terminal, falling back to the raw text.
func renderMarkdown(text string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// runOnce prints one search and persists the cache after it.
func runOnce(ctx context.Context, w io.Writer, sess session, req domain.SearchRequest, flags searchFlags) error {
	report, err := sess.Search(ctx, req)
	if report != nil {
		if werr := writeReport(w, report, flags); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	if ferr := sess.Flush(); ferr != nil {
		slog.Warn("response_cache_flush_failed", "error", ferr)
	}
	return err
}
