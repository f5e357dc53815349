// aicheck is the diagnostic CLI for libai: it runs the end-to-end smoke
// flow against the configured backend, prints the resolved configuration,
// and reports build information.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"libai/core"
	"libai/validation"
)

var (
	flagBackend string
	flagQuiet   bool
)

func main() {
	os.Exit(run())
}

func run() int {
	// A signal during a long probe or generate maps to the conventional
	// 128+signum exit codes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if sig == syscall.SIGTERM {
			os.Exit(core.ExitCodeSIGTERM)
		}
		os.Exit(core.ExitCodeSIGINT)
	}()

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aicheck: %v\n", err)
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "aicheck",
		Short:         "Diagnose the libai on-device model integration",
		Long:          "aicheck runs the libai smoke flow (init, probe, context, session, generate, teardown) against the configured backend and reports each step.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
	root.PersistentFlags().StringVar(&flagBackend, "backend", "",
		"backend override: fmshim, openai, or echo (default from environment)")

	check := &cobra.Command{
		Use:   "check",
		Short: "Run the smoke flow (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
	check.Flags().BoolVarP(&flagQuiet, "quiet", "q", false,
		"suppress step output, report only the summary exit status")

	env := &cobra.Command{
		Use:   "env",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnv(cmd)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), core.GetVersionInfo())
		},
	}

	root.AddCommand(check, env, version)
	return root
}

func loadConfig() (core.Config, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return core.Config{}, err
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	return cfg, nil
}

func runCheck() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result := validation.NewSmokeSuite(cfg).
		WithShowProgress(!flagQuiet).
		Run()
	if !result.Success {
		return fmt.Errorf("%d of %d steps failed", result.FailedSteps, result.TotalSteps)
	}
	return nil
}

func runEnv(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = core.ApplyDefaults(cfg)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:          %s\n", cfg.Backend)
	if cfg.Backend == core.BackendFMShim {
		shimPath := cfg.ShimPath
		if shimPath == "" {
			shimPath = "(well-known locations)"
		}
		fmt.Fprintf(out, "shim_path:        %s\n", shimPath)
	}
	if cfg.Backend == core.BackendOpenAI {
		baseURL := cfg.OpenAIBaseURL
		if baseURL == "" {
			baseURL = "(official endpoint)"
		}
		fmt.Fprintf(out, "openai_base_url:  %s\n", baseURL)
		fmt.Fprintf(out, "openai_model:     %s\n", cfg.OpenAIModel)
		fmt.Fprintf(out, "openai_api_key:   %s\n", maskSecret(cfg.OpenAIAPIKey))
	}
	fmt.Fprintf(out, "request_timeout:  %s\n", cfg.RequestTimeout)
	fmt.Fprintf(out, "max_concurrent:   %d\n", cfg.MaxConcurrent)
	fmt.Fprintf(out, "log_enabled:      %t\n", cfg.LogEnabled)
	if cfg.LogEnabled {
		fmt.Fprintf(out, "log_file:         %s\n", cfg.LogFilePath)
		fmt.Fprintf(out, "log_level:        %s\n", cfg.LogLevel)
	}
	historyPath := cfg.HistoryPath
	if historyPath == "" {
		historyPath = "(disabled)"
	}
	fmt.Fprintf(out, "history_path:     %s\n", historyPath)
	return nil
}

// maskSecret keeps just enough of a credential to recognize it.
func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + "****"
}
