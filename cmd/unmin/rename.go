package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unminlab/unmin/internal/daemon"
	"github.com/unminlab/unmin/internal/mapping"
	"github.com/unminlab/unmin/pkg/logger"
)

var (
	renameMaps          []string
	renameFromStore     bool
	renameMinConfidence float64
	renameNoAutostart   bool
)

var renameCmd = &cobra.Command{
	Use:   "rename <file>",
	Short: "Replay symbol renames in a bundle file via the daemon",
	Long: `Rename symbols in a minified file through the language server daemon.

Mappings come from -m flags, the mapping store (--from-store), or both;
explicit -m flags win over stored ones. The daemon is started on demand
unless --no-autostart is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRename,
}

func init() {
	renameCmd.Flags().StringArrayVarP(&renameMaps, "map", "m", nil, "rename pair as original=desired (repeatable)")
	renameCmd.Flags().BoolVar(&renameFromStore, "from-store", false, "include mappings from the store")
	renameCmd.Flags().Float64Var(&renameMinConfidence, "min-confidence", 0.5, "minimum stored confidence to replay")
	renameCmd.Flags().BoolVar(&renameNoAutostart, "no-autostart", false, "fail instead of starting the daemon")
}

func runRename(cmd *cobra.Command, args []string) error {
	mappings, err := collectMappings()
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return fmt.Errorf("no mappings: pass -m original=desired or --from-store")
	}

	lockPath, err := cfg.LockPath()
	if err != nil {
		return err
	}
	client := daemon.NewClient(cfg.Addr(), daemon.NewLockFile(lockPath), logger.Default(),
		daemon.WithAutostart(!renameNoAutostart),
		daemon.WithStartupWait(cfg.StartupWait()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resp, err := client.Rename(ctx, args[0], mappings)
	if err != nil {
		return err
	}
	printReport(args[0], resp)
	if !resp.Success {
		return fmt.Errorf("batch failed: %s", resp.Error)
	}
	return nil
}

// collectMappings merges stored mappings with -m flags, flags winning.
func collectMappings() (map[string]string, error) {
	mappings := make(map[string]string)

	if renameFromStore {
		dataDir, err := cfg.DataDir()
		if err != nil {
			return nil, err
		}
		store, err := mapping.NewStore(dataDir)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		stored, err := store.Export(context.Background(), renameMinConfidence)
		if err != nil {
			return nil, err
		}
		for orig, desired := range stored {
			mappings[orig] = desired
		}
	}

	for _, pair := range renameMaps {
		orig, desired, ok := strings.Cut(pair, "=")
		if !ok || orig == "" || desired == "" {
			return nil, fmt.Errorf("invalid mapping %q, want original=desired", pair)
		}
		mappings[orig] = desired
	}
	return mappings, nil
}

func printReport(path string, resp *daemon.Response) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Rename report") + dimStyle.Render(" — "+path) + "\n\n")

	for _, orig := range sortedKeys(resp.SuccessfulRenames) {
		b.WriteString(successStyle.Render("  ✓ ") +
			fmt.Sprintf("%s → %s\n", orig, resp.SuccessfulRenames[orig]))
	}
	for _, orig := range sortedKeys(resp.FailedRenames) {
		b.WriteString(errorStyle.Render("  ✗ ") +
			fmt.Sprintf("%s (%s)\n", orig, resp.FailedRenames[orig]))
	}

	b.WriteString("\n" + fmt.Sprintf("%d renamed, %d failed, %d references touched",
		len(resp.SuccessfulRenames), len(resp.FailedRenames), resp.TotalReferences))

	fmt.Println(boxStyle.Render(b.String()))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
