// Package main is the entry point for the unmin CLI.
//
// unmin reverse-engineers minified JavaScript bundles: it learns symbol
// renames from manually edited code and replays them through a language
// server, so one readable name propagates to every reference.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unminlab/unmin/internal/config"
	"github.com/unminlab/unmin/pkg/logger"
)

// version is set by build flags during release.
var version = "dev"

var (
	cfgFile string
	verbose bool

	cfg = config.DefaultConfig()
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "unmin",
	Short: "Un-minify JavaScript bundles by replaying learned symbol renames",
	Long: `unmin is a toolkit for reverse-engineering minified JavaScript bundles.

It learns symbol renames by diffing pristine bundles against manually
refactored copies, stores them with confidence scores, and replays them
through a language server so every reference of a renamed symbol is
rewritten consistently. A background daemon keeps the language server
warm across invocations.`,
	Version: version,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("unmin version %s\n", version)
	},
}

// homeCmd greets with the banner and a quick orientation.
var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Show the unmin home screen",
	Run: func(cmd *cobra.Command, args []string) {
		printHome()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/unmin/config.yaml plus ./.unmin.jsonc)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(daemonCmd)
}

func initConfig() {
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}
	if cfgFile != "" {
		os.Setenv("UNMIN_CONFIG", cfgFile)
	}

	loaded, err := config.LoadConfig()
	if err != nil {
		logger.Warn("failed to load config: %v, using defaults", err)
		return
	}
	cfg = loaded

	if !verbose {
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
