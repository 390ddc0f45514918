package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"antbot/internal/chunker"
	"antbot/internal/config"
	"antbot/internal/extractor"
	"antbot/internal/generator"
	"antbot/internal/llm/openai"
	"antbot/internal/prompt"
	"antbot/internal/retrieval"
	"antbot/internal/service"
	"antbot/internal/storage"
	"antbot/internal/summarizer"
)

// app carries the loaded configuration and logger of one command invocation.
type app struct {
	cfg     *config.AppConfig
	cfgPath string
	logger  *slog.Logger
	logOut  io.Closer
}

// newApp loads configuration and sets up logging. Interactive commands log to a file.
func newApp(cmd *cobra.Command, logToFile bool) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	a := &app{cfg: cfg, cfgPath: path}
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" || logToFile {
		file := cfg.Log.File
		if file == "" {
			file = filepath.Join(os.TempDir(), "antbot.log")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, a.logOut = f, f
	}
	a.logger = setupLogging(cfg.Log, out)
	return a, nil
}

func (a *app) Close() {
	if a.logOut != nil {
		a.logOut.Close()
	}
}

func setupLogging(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func (a *app) store() (*storage.BlobStore, error) {
	return storage.NewBlobStore(a.cfg.Storage.URL)
}

// pipeline validates the configuration and assembles the question answering pipeline.
func (a *app) pipeline(ctx context.Context) (*service.Pipeline, *prompt.Assembler, error) {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	apiKey, err := cfg.ResolveAPIKey(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := a.store()
	if err != nil {
		return nil, nil, err
	}
	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second
	llm, err := openai.NewClient(openai.Config{
		Provider:   cfg.LLM.Provider,
		BaseURL:    cfg.LLM.Endpoint,
		APIKey:     apiKey,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	ranker, err := retrieval.New(cfg.Retrieval.Ranker)
	if err != nil {
		return nil, nil, err
	}
	asm := prompt.NewAssembler(cfg.Prompt.Language)
	p, err := service.NewPipeline(service.Options{
		Container: cfg.Storage.Container,
		Object:    cfg.Storage.Object,
		ChunkSize: cfg.Chunker.ChunkSize,
		TopK:      cfg.Retrieval.TopK,
	}, service.Components{
		Store:      store,
		Extractor:  extractor.NewPDFExtractor(a.logger, nil),
		Chunker:    chunker.NewSentenceChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap),
		Ranker:     ranker,
		Assembler:  asm,
		Generator:  generator.New(llm, cfg.LLM.Deployment, timeout, asm.GenerationError, a.logger),
		Summarizer: summarizer.NewFrequencySummarizer(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("pipeline configured", "source", p.Source(), "provider", cfg.LLM.Provider, "deployment", cfg.LLM.Deployment, "ranker", ranker.Name())
	return p, asm, nil
}
