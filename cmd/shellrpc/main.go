package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	cliconfig "github.com/antonkrylov/shellrpc/internal/cli/config"
	"github.com/antonkrylov/shellrpc/internal/pattern"
	"github.com/antonkrylov/shellrpc/internal/shellrpc"
)

type rootOptions struct {
	configPath string
	verbose    bool
	config     *cliconfig.Config
}

func (r *rootOptions) prepare() error {
	cfg, err := cliconfig.Load(r.configPath)
	if err != nil {
		return err
	}
	r.config = cfg
	return nil
}

func (r *rootOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if r.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "shellrpc",
		Short: "Run commands in a persistent supervised shell session",
	}
	defaultConfig := os.Getenv("SHELLRPC_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to shellrpc config file (default $HOME/.shellrpc/config)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return opts.prepare()
	}

	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newDoctorCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type execFlags struct {
	dir        string
	shell      string
	timeout    time.Duration
	cleanEnv   bool
	noPTY      bool
	envVars    []string
	transcript string
}

func newExecCmd(root *rootOptions) *cobra.Command {
	opts := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [command ...]",
		Short: "Execute commands in one shell session and print their output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envMap, err := parseEnv(opts.envVars)
			if err != nil {
				return err
			}
			sessOpts := shellrpc.Options{
				Dir:            opts.dir,
				Shell:          opts.shell,
				CleanEnv:       opts.cleanEnv,
				Env:            envMap,
				TranscriptPath: opts.transcript,
				Logger:         root.logger(),
			}
			if cfg := root.config; cfg != nil {
				if sessOpts.Shell == "" {
					sessOpts.Shell = cfg.Shell
				}
				if !sessOpts.CleanEnv {
					sessOpts.CleanEnv = cfg.CleanEnv
				}
				sessOpts.PreferPTY = cfg.PreferPTY
				if opts.timeout == 0 {
					opts.timeout = cfg.DefaultTimeout()
				}
				if sessOpts.TranscriptPath == "" && cfg.TranscriptDir != "" {
					name := fmt.Sprintf("session-%d.zst", time.Now().Unix())
					sessOpts.TranscriptPath = filepath.Join(cfg.TranscriptDir, name)
				}
			}
			if opts.noPTY {
				f := false
				sessOpts.PreferPTY = &f
			}
			// Size the session PTY from the controlling terminal when
			// stdout is one; otherwise the backend default applies.
			if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
				if w, h, err := term.GetSize(fd); err == nil && w > 0 && h > 0 {
					sessOpts.Cols = uint16(w)
					sessOpts.Rows = uint16(h)
				}
			}

			sess, err := shellrpc.New(sessOpts)
			if err != nil {
				return err
			}
			defer sess.Cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sess.Initialize(ctx); err != nil {
				return err
			}
			for _, c := range args {
				res, err := sess.Execute(ctx, c, opts.timeout)
				if err != nil {
					var serr *shellrpc.Error
					if errors.As(err, &serr) && serr.Partial != nil && serr.Partial.Stdout != "" {
						fmt.Fprintln(os.Stderr, serr.Partial.Stdout)
					}
					return err
				}
				if res.Stdout != "" {
					fmt.Fprintln(os.Stdout, res.Stdout)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.dir, "dir", "C", "", "working directory for the shell")
	cmd.Flags().StringVar(&opts.shell, "shell", "", "shell executable (overrides config and auto-detection)")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "explicit command timeout; 0 classifies each command")
	cmd.Flags().BoolVar(&opts.cleanEnv, "clean-env", false, "spawn the shell with a minimal environment")
	cmd.Flags().BoolVar(&opts.noPTY, "no-pty", false, "force the pipe backend even when a PTY is available")
	cmd.Flags().StringArrayVarP(&opts.envVars, "env", "e", nil, "extra environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&opts.transcript, "transcript", "", "record session output to a zstd transcript file")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify -- command [command ...]",
		Short: "Show how commands would be classified and supervised",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cls := pattern.NewClassifier(false)
			for _, c := range args {
				result, cfg := cls.ConfigFor(c)
				fmt.Fprintf(os.Stdout, "command=%q category=%s manager=%s base=%s extension=%s grace=%s absolute=%s\n",
					c, result.Category, result.Manager,
					cfg.Base, cfg.ActivityExtension, cfg.Grace, cfg.AbsoluteMax)
			}
			return nil
		},
	}
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env pair %q, want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}
