// Command veritas is the CLI entry point for the reasoner: loads a source
// file, drives it to a fixed point, and optionally drops into an
// interactive shell (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veritas/internal/config"
	"veritas/internal/logging"
)

var (
	flagFile        string
	flagStrategy    string
	flagSchemaCheck bool
	flagInteractive bool
	flagTrace       string
	flagConfig      string
)

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "A justification-maintained, stratified, fuzzy-aware production-rule reasoner",
	Long: `veritas loads a source file of facts, productions and directives, drives
the forward-chaining cycle to a fixed point under a pluggable conflict
resolution strategy, and maintains justifications for every live fact so
retraction cascades correctly.`,
	RunE: runRoot,
}

func init() {
	rootCmd.Flags().StringVarP(&flagFile, "file", "f", "", "source file to load (required)")
	rootCmd.Flags().StringVarP(&flagStrategy, "strategy", "s", "", "conflict resolution strategy (prefix-matched)")
	rootCmd.Flags().BoolVarP(&flagSchemaCheck, "schema-check", "c", false, "enable schema-check warnings")
	rootCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "drop into an interactive shell after loading")
	rootCmd.Flags().StringVarP(&flagTrace, "trace", "t", "", "write a cycle trace to this path")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "yaml configuration file")
}

func runRoot(cmd *cobra.Command, args []string) error {
	if flagFile == "" {
		return cmd.Help()
	}

	log, err := logging.NewDevelopment()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagStrategy != "" {
		cfg.Strategy = flagStrategy
	}
	if flagSchemaCheck {
		cfg.SchemaCheck = true
	}
	if flagTrace != "" {
		cfg.TracePath = flagTrace
	}

	prog, err := NewProgram(cfg, log)
	if err != nil {
		return fmt.Errorf("init program: %w", err)
	}
	defer prog.Close()
	if err := prog.LoadFile(flagFile); err != nil {
		return fmt.Errorf("load %s: %w", flagFile, err)
	}

	if flagInteractive {
		return RunInteractive(prog, flagFile)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
