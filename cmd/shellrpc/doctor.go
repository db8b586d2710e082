package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cliconfig "github.com/antonkrylov/shellrpc/internal/cli/config"
	"github.com/antonkrylov/shellrpc/internal/platform"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, _ := os.Executable()
			exe = strings.TrimSpace(exe)
			look, _ := exec.LookPath("shellrpc")
			look = strings.TrimSpace(look)

			fmt.Fprintf(os.Stdout, "shellrpc_executable=%s\n", exe)
			if look != "" {
				fmt.Fprintf(os.Stdout, "shellrpc_on_path=%s\n", look)
			}
			if exe != "" && look != "" {
				absExe, _ := filepath.EvalSymlinks(exe)
				absLook, _ := filepath.EvalSymlinks(look)
				if absExe != "" && absLook != "" && absExe != absLook {
					fmt.Fprintln(os.Stdout, "warning=you_are_not_running_the_same_shellrpc_as_on_PATH (adjust PATH or call the intended binary explicitly)")
				}
			}
			fmt.Fprintf(os.Stdout, "PATH=%s\n", os.Getenv("PATH"))

			spec, err := platform.Resolve()
			if err != nil {
				fmt.Fprintf(os.Stdout, "platform_error=%s\n", err.Error())
				return nil
			}
			fmt.Fprintf(os.Stdout, "platform=%s\n", spec.Platform)
			fmt.Fprintf(os.Stdout, "shell_candidates=%s\n", strings.Join(spec.ShellCandidates, ","))

			locator := platform.NewToolLocator()
			if shell, err := locator.LocateShell(spec); err != nil {
				fmt.Fprintf(os.Stdout, "shell_error=%s\n", err.Error())
			} else {
				fmt.Fprintf(os.Stdout, "shell=%s\n", shell)
			}
			for _, tool := range platform.KnownTools {
				if path, err := locator.Locate(tool); err == nil {
					fmt.Fprintf(os.Stdout, "tool_%s=%s\n", tool, path)
				} else {
					fmt.Fprintf(os.Stdout, "tool_%s=missing\n", tool)
				}
			}
			fmt.Fprintf(os.Stdout, "pty_available=%t\n", probePTY())

			fmt.Fprintf(os.Stdout, "config_path=%s\n", root.configPath)
			cfg, err := cliconfig.Load(root.configPath)
			if err != nil {
				fmt.Fprintf(os.Stdout, "config_error=%s\n", err.Error())
				return nil
			}
			if cfg == nil {
				fmt.Fprintln(os.Stdout, "config_present=false")
				return nil
			}
			fmt.Fprintln(os.Stdout, "config_present=true")
			if cfg.Shell != "" {
				fmt.Fprintf(os.Stdout, "config_shell=%s\n", cfg.Shell)
			}
			if cfg.PreferPTY != nil {
				fmt.Fprintf(os.Stdout, "config_prefer_pty=%t\n", *cfg.PreferPTY)
			}
			fmt.Fprintf(os.Stdout, "config_clean_env=%t\n", cfg.CleanEnv)
			if cfg.PoolSize > 0 {
				fmt.Fprintf(os.Stdout, "config_pool_size=%d\n", cfg.PoolSize)
			}
			if cfg.DefaultTimeoutMS > 0 {
				fmt.Fprintf(os.Stdout, "config_default_timeout_ms=%d\n", cfg.DefaultTimeoutMS)
			}
			if cfg.TranscriptDir != "" {
				fmt.Fprintf(os.Stdout, "config_transcript_dir=%s\n", cfg.TranscriptDir)
			}
			return nil
		},
	}
	return cmd
}
