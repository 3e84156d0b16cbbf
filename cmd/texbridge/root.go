package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/config"
	"github.com/caffeineduck/texbridge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "texbridge",
	Short: "Run LaTeX tools inside a sandboxed Perl interpreter",
	Long: `texbridge - Run texcount, tex-fmt, latexdiff, latexpand and latexindent
inside an isolated interpreter context.

Scripts are fetched from the scripts base on first use and staged into the
sandbox with every call. Nothing on the host filesystem is visible to them.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "TOML config file")
	flags.String("bootstrap", defaults.BootstrapBase, "Base location of the interpreter bootstrap")
	flags.String("scripts", defaults.ScriptsBase, "Base location of the tool scripts")
	flags.String("backend", defaults.Backend, "Interpreter backend: wasm, script")
	flags.BoolP("verbose", "v", false, "Debug logging")
	flags.Duration("init-timeout", defaults.InitTimeout, "Timeout waiting for the sandbox to become ready")
	flags.Duration("exec-timeout", defaults.ExecTimeout, "Timeout for a single tool run")
}

// loadConfig reads --config when given; flags set on the command line
// override file values.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("bootstrap") {
		cfg.BootstrapBase, _ = flags.GetString("bootstrap")
	}
	if flags.Changed("scripts") {
		cfg.ScriptsBase, _ = flags.GetString("scripts")
	}
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("init-timeout") {
		cfg.InitTimeout, _ = flags.GetDuration("init-timeout")
	}
	if flags.Changed("exec-timeout") {
		cfg.ExecTimeout, _ = flags.GetDuration("exec-timeout")
	}
	return cfg, cfg.Validate()
}

func newToolkit(cmd *cobra.Command) (*texbridge.Toolkit, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), "texbridge", cfg.Verbose)
	return texbridge.New(cfg, texbridge.WithLogger(log))
}

// readSource returns the named file, or stdin when the name is empty or "-".
func readSource(cmd *cobra.Command, name string) (string, error) {
	if name == "" || name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func argOrStdin(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// printResult writes the tool output to stdout and its log to stderr. A
// failed run is an error carrying the exit code.
func printResult(cmd *cobra.Command, res bridge.Result) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, res.Output)
	if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
		fmt.Fprintln(out)
	}
	if res.Error != "" {
		fmt.Fprint(cmd.ErrOrStderr(), res.Error)
		if !strings.HasSuffix(res.Error, "\n") {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}
	if !res.Success {
		return fmt.Errorf("exit code %d", res.ExitCode)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parsePairs splits key=value specs such as --input /tmp/a.tex=./a.tex.
func parsePairs(flag string, specs []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(specs))
	for _, spec := range specs {
		k, v, ok := strings.Cut(spec, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid --%s %q (expected name=value)", flag, spec)
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs, nil
}
