package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"antbot/internal/api"
	"antbot/internal/domain"
	"antbot/internal/session"
	"antbot/internal/tui"
)

// Execute runs the root command with a signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the antbot command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "antbot",
		Short:         "AntBot - answers questions about the team solution manual",
		Long:          `AntBot downloads the solution manual from object storage and answers questions grounded in its text.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().String("config", "", "Path to YAML or TOML config file (default ./antbot.yaml or ~/.config/antbot/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(chatCmd(), askCmd(), serveCmd(), uploadCmd(), listCmd(), statusCmd())
	return root
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			p, asm, err := a.pipeline(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loading %s...\n", p.Source())
			summary := fmt.Sprintf("Manual: %s", p.Source())
			if err := p.Warm(ctx); err != nil {
				a.logger.Error("manual load failed", "error", err)
				summary = asm.Unavailable(err)
			} else if overview, err := p.Overview(ctx, a.cfg.Summarizer.MaxSentences); err == nil && overview != "" {
				st := p.Stats()
				summary = fmt.Sprintf("%s (%d pages, %d sections) - %s", p.Source(), st.Pages, st.Chunks, overview)
			}

			m := tui.New(ctx, session.New(p, asm.Unavailable), "AntBot", summary, asm.Template().Welcome)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			p, _, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			ans, err := p.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if show, _ := cmd.Flags().GetBool("sources"); show {
				for i, sc := range ans.Sources {
					fmt.Fprintf(out, "\n[%d] section #%d (score %.0f)\n%s\n", i+1, sc.Chunk.Index+1, sc.Score, sc.Chunk.Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("sources", false, "Print the manual sections used as context")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			p, asm, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			go func() {
				if err := p.Warm(ctx); err != nil {
					a.logger.Error("manual load failed, questions will be rejected", "error", err)
				}
			}()

			addr := a.cfg.Server.Addr
			if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
				addr = flagAddr
			}
			sessions := session.NewStore(p, asm.Unavailable)
			idle := time.Duration(a.cfg.Server.SessionIdleMins) * time.Minute
			return api.NewServer(addr, p, sessions, a.cfg.Check(), idle).Start(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a manual to the document container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.store()
			if err != nil {
				return err
			}
			container := containerFlag(cmd, a)
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name = filepath.Base(args[0])
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			obj, err := store.Upload(cmd.Context(), container, name, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded %s to %s (%.2f MB)\n", obj.Name, container, obj.SizeMB())
			return printObjects(cmd, a, container)
		},
	}
	cmd.Flags().String("name", "", "Object name (defaults to the file name)")
	cmd.Flags().String("container", "", "Container name (overrides storage.container)")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the manuals stored in the document container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printObjects(cmd, a, containerFlag(cmd, a))
		},
	}
	cmd.Flags().String("container", "", "Container name (overrides storage.container)")
	return cmd
}

func printObjects(cmd *cobra.Command, a *app, container string) error {
	store, err := a.store()
	if err != nil {
		return err
	}
	objects, err := store.List(cmd.Context(), container)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files in %s:\n", container)
	for _, o := range objects {
		fmt.Fprintf(out, "  - %s (%.2f MB)\n", o.Name, o.SizeMB())
	}
	fmt.Fprintf(out, "Total: %d files\n", len(objects))
	return nil
}

func containerFlag(cmd *cobra.Command, a *app) string {
	if c, _ := cmd.Flags().GetString("container"); c != "" {
		return c
	}
	return a.cfg.Storage.Container
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which settings are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			cfg := a.cfg

			fmt.Fprintln(out, "Connection status:")
			for _, c := range cfg.Check() {
				mark := "✗"
				if c.OK {
					mark = "✓"
				}
				fmt.Fprintf(out, "  %s %s\n", mark, c.Name)
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Fprintln(out, "Debug info:")
				fmt.Fprintf(out, "├─ Config: %s\n", a.cfgPath)
				fmt.Fprintf(out, "├─ Provider: %s\n", cfg.LLM.Provider)
				fmt.Fprintf(out, "├─ Endpoint: %s\n", cfg.LLM.Endpoint)
				fmt.Fprintf(out, "├─ Deployment: %s\n", cfg.LLM.Deployment)
				fmt.Fprintf(out, "├─ API version: %s\n", cfg.LLM.APIVersion)
				fmt.Fprintf(out, "├─ Storage: %s\n", cfg.Storage.URL)
				fmt.Fprintf(out, "├─ Container: %s\n", cfg.Storage.Container)
				fmt.Fprintf(out, "└─ Object: %s\n", cfg.Storage.Object)
			}

			if probe, _ := cmd.Flags().GetBool("probe"); probe {
				p, _, err := a.pipeline(cmd.Context())
				if err != nil {
					return err
				}
				if err := p.Warm(cmd.Context()); err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						fmt.Fprintf(out, "Manual %s not found; upload it with `antbot upload`.\n", p.Source())
					}
					return err
				}
				st := p.Stats()
				fmt.Fprintf(out, "Manual ready: %s, %d pages, %d sections, ranker %s\n", st.Source, st.Pages, st.Chunks, st.Ranker)
			}
			return cfg.Validate()
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "Show debug info")
	cmd.Flags().Bool("probe", false, "Load the manual and report its size")
	return cmd
}
