package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/filter"
	"github.com/isdmx/plotbox/logger"
	"github.com/isdmx/plotbox/sandbox"
	"github.com/isdmx/plotbox/storage/sqlite"
	"github.com/isdmx/plotbox/visualize"
)

var (
	languageFlag   string
	outputTypeFlag string
	renderModeFlag string
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a script and publish its chart",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check <script>",
	Short: "Check a script against the keyword filter without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(runCmd, checkCmd)

	for _, cmd := range []*cobra.Command{runCmd, checkCmd} {
		cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Script language (python, r); inferred from the file extension when empty")
	}
	runCmd.Flags().StringVarP(&outputTypeFlag, "output", "o", visualize.DefaultOutputType, "Output type (png, html)")
	runCmd.Flags().StringVarP(&renderModeFlag, "mode", "m", string(visualize.RenderStatic), "Visualization type (static, interactive, 3d)")
}

// languageOf returns the flag value, or the language implied by the file extension.
func languageOf(path string) (string, error) {
	if lang := strings.ToLower(strings.TrimSpace(languageFlag)); lang != "" {
		return lang, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return config.LanguagePython, nil
	case ".r":
		return config.LanguageR, nil
	default:
		return "", fmt.Errorf("cannot infer language of %s, use --language", path)
	}
}

func readScript(path string) (string, string, error) {
	language, err := languageOf(path)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), language, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	script, language, err := readScript(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := filter.NewFromConfig(nil, cfg).Check(cmd.Context(), script, language); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	script, language, err := readScript(args[0])
	if err != nil {
		return err
	}
	req, err := visualize.NewRequest(script, language, outputTypeFlag, renderModeFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	executor, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		return err
	}
	store, err := artifact.NewStoreFromConfig(cfg)
	if err != nil {
		return err
	}
	ledger, err := sqlite.OpenFromConfig(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	service, err := visualize.NewFromConfig(log, cfg, filter.NewFromConfig(log, cfg), executor,
		store, artifact.NewResolverFromConfig(log, cfg), ledger)
	if err != nil {
		return err
	}

	res, genErr := service.Generate(cmd.Context(), req)

	out := map[string]any{"run_id": res.RunID, "outcome": res.Outcome}
	if genErr == nil {
		out["path"] = res.Artifact.Path
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return genErr
}
