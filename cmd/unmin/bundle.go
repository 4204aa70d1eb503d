package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/unminlab/unmin/internal/bundle"
	"github.com/unminlab/unmin/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a bundle and unpack it into the data directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Inventory declaration-shaped symbols in a bundle",
	Long: `Scan a bundle file or directory for declaration-shaped symbols and
webpack-style module boundaries. No JavaScript is parsed; the scan is a
regex harvest meant to seed learn and rename workflows.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runFetch(cmd *cobra.Command, args []string) error {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}

	fetcher := bundle.NewFetcher(filepath.Join(dataDir, "bundles"), logger.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dest, err := fetcher.Fetch(ctx, args[0])
	if err != nil {
		return err
	}
	printOK("bundle ready at %s", dest)
	fmt.Println(dimStyle.Render("next: unmin scan " + dest))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	report, err := bundle.Scan(args[0])
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Bundle scan") + dimStyle.Render(" — "+report.Root))
	for _, file := range report.Files {
		fmt.Printf("  %s %s\n", file.Path,
			dimStyle.Render(fmt.Sprintf("(%d symbols, %d minified, %d modules)",
				len(file.Symbols), file.MinifiedCount(), file.ModuleCount)))
	}
	fmt.Println()

	summary := fmt.Sprintf("%d files, %d symbols (%d look minified), %d module boundaries",
		len(report.Files), report.TotalSymbols, report.TotalMinified, report.TotalModules)
	if report.TotalMinified > 0 {
		printWarn("%s", summary)
		fmt.Println(wrap(dimStyle.Render(
			"Refactor a copy by hand, then 'unmin learn <original> <edited>' turns the edits into reusable mappings.")))
	} else {
		printOK("%s", summary)
	}
	return nil
}
