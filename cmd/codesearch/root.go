package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/codesearch/internal/bootstrap"
	"github.com/kirillkom/codesearch/internal/config"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/observability/logging"
)

const serviceName = "codesearch"

// session is a search backend bound to one process; Flush persists its cache.
type session interface {
	ports.CodeSearcher
	Flush() error
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	cfg     config.Config
	verbose bool

	loadConfig func() (config.Config, error)
	open       func(ctx context.Context, cfg config.Config) (session, func(), error)
}

func newCLI() *cli {
	return &cli{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		stdin:      os.Stdin,
		loadConfig: loadConfig,
		open:       openLocal,
	}
}

func loadConfig() (config.Config, error) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, err
		}
	}
	return config.Load()
}

func openLocal(ctx context.Context, cfg config.Config) (session, func(), error) {
	local, err := bootstrap.NewLocal(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return local, local.Close, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "codesearch",
		Short: "Ask questions about a codebase",
		Long: `codesearch packs every readable file of a repository into chunks that fit a
model's context window, asks the question of each chunk in parallel and merges the
relevant findings into one answer. Responses are cached per chunk and question.`,
		Version:      versionString(),
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			c.cfg = cfg

			level := "warn"
			if c.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(c.stderr, serviceName, level, "text"))
			return nil
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetIn(c.stdin)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		newSearchCmd(c),
		newWatchCmd(c),
		newMCPCmd(c),
		newVersionCmd(c),
	)
	return root
}
