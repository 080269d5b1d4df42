package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/kisan-mitra/internal/progress"
)

var factsLimit int

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect and seed the long-term facts of a farmer",
}

var factsListCmd = &cobra.Command{
	Use:   "list <user_id>",
	Short: "List stored facts, most relevant first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, index, err := openFactStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer index.Close()

		limit := factsLimit
		if limit <= 0 {
			limit = cfg.FactLimit
		}
		facts, err := store.ListFacts(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No facts saved for %s.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tSAVED\tFACT")
		for _, f := range facts {
			saved := "-"
			if !f.CreatedAt.IsZero() {
				saved = f.CreatedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%.3f\t%s\t%s\n", f.Score, saved, f.Text)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		total, err := store.Count(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if total > len(facts) {
			fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d facts.\n", len(facts), total)
		}
		return nil
	},
}

var factsImportCmd = &cobra.Command{
	Use:   "import <user_id> <file>",
	Short: "Store facts from a file, one per line",
	Long: `Reads facts from a text file, one per line, and stores each for the
farmer. Blank lines and lines starting with # are skipped. Use - to read
from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, path := args[0], args[1]

		var r io.Reader = cmd.InOrStdin()
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		facts, err := readFacts(r)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if len(facts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No facts to import.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, index, err := openFactStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer index.Close()

		reporter := progress.NewReporter("Importing facts", cmd.ErrOrStderr())
		reporter.Start(len(facts))
		for i, fact := range facts {
			if err := store.AddFact(cmd.Context(), userID, fact); err != nil {
				reporter.Finish()
				return fmt.Errorf("storing fact %d of %d: %w", i+1, len(facts), err)
			}
			reporter.Update(i+1, fact)
		}
		reporter.Finish()

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d facts for %s.\n", len(facts), userID)
		return nil
	},
}

// readFacts returns the trimmed, non-comment lines of r.
func readFacts(r io.Reader) ([]string, error) {
	var facts []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		facts = append(facts, line)
	}
	return facts, sc.Err()
}

func init() {
	factsListCmd.Flags().IntVarP(&factsLimit, "limit", "n", 0, "maximum number of facts (default: fact_limit from config)")
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsImportCmd)
	rootCmd.AddCommand(factsCmd)
}
