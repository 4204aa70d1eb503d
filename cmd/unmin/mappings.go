package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unminlab/unmin/internal/mapping"
	"github.com/unminlab/unmin/pkg/logger"
)

var (
	learnModule    string
	learnThreshold float64
	learnDryRun    bool

	exportOutput        string
	exportMinConfidence float64
)

var learnCmd = &cobra.Command{
	Use:   "learn <original> <edited>",
	Short: "Learn renames by diffing a bundle against its edited copy",
	Long: `Diff a pristine minified file against a manually refactored copy and
store the symbol renames the edit performed, scored by how much of the
surrounding code stayed put.`,
	Args: cobra.ExactArgs(2),
	RunE: runLearn,
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage the learned rename store",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored mappings, highest confidence first",
	Args:  cobra.NoArgs,
	RunE:  runMappingsList,
}

var mappingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export mappings as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE:  runMappingsExport,
}

var mappingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import mappings from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingsImport,
}

var mappingsRmCmd = &cobra.Command{
	Use:   "rm <original>",
	Short: "Remove one mapping",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingsRm,
}

func init() {
	learnCmd.Flags().StringVar(&learnModule, "module", "", "module tag recorded with learned mappings")
	learnCmd.Flags().Float64Var(&learnThreshold, "threshold", mapping.DefaultThreshold, "minimum confidence to keep a pair")
	learnCmd.Flags().BoolVar(&learnDryRun, "dry-run", false, "show learned pairs without storing them")

	mappingsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (stdout when omitted; extension picks JSON or YAML)")
	mappingsExportCmd.Flags().Float64Var(&exportMinConfidence, "min-confidence", 0, "minimum confidence to export")

	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsExportCmd)
	mappingsCmd.AddCommand(mappingsImportCmd)
	mappingsCmd.AddCommand(mappingsRmCmd)
}

func openStore() (*mapping.Store, error) {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	return mapping.NewStore(dataDir)
}

func runLearn(cmd *cobra.Command, args []string) error {
	original, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	edited, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}

	learner := mapping.NewLearner(learnThreshold, logger.Default())
	learned := learner.Learn(string(original), string(edited), learnModule)
	if len(learned) == 0 {
		printWarn("no renames cleared the %.2f confidence bar", learnThreshold)
		return nil
	}

	for _, m := range learned {
		fmt.Printf("  %s → %s %s\n", m.Original, m.Desired,
			dimStyle.Render(fmt.Sprintf("(%.2f)", m.Confidence)))
	}

	if learnDryRun {
		printWarn("dry run: %d pairs not stored", len(learned))
		return nil
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutBatch(context.Background(), learned); err != nil {
		return err
	}
	printOK("stored %d mappings", len(learned))
	return nil
}

func runMappingsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		printWarn("store is empty; run 'unmin learn' first")
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%d mappings", len(list))))
	for _, m := range list {
		line := fmt.Sprintf("  %-24s → %-28s %.2f", m.Original, m.Desired, m.Confidence)
		if m.Module != "" {
			line += dimStyle.Render("  " + m.Module)
		}
		fmt.Println(line)
	}
	return nil
}

func runMappingsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}

	filtered := list[:0]
	for _, m := range list {
		if m.Confidence >= exportMinConfidence {
			filtered = append(filtered, m)
		}
	}

	if exportOutput == "" {
		return mapping.WriteJSON(os.Stdout, filtered)
	}

	out, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOutput, err)
	}
	defer out.Close()

	if err := mapping.Write(out, exportOutput, filtered); err != nil {
		return err
	}
	printOK("exported %d mappings to %s", len(filtered), exportOutput)
	return nil
}

func runMappingsImport(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer in.Close()

	ms, err := mapping.Read(in, args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutBatch(context.Background(), ms); err != nil {
		return err
	}
	printOK("imported %d mappings from %s", len(ms), args[0])
	return nil
}

func runMappingsRm(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	printOK("removed %s", args[0])
	return nil
}
