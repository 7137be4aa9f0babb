// Command prdiff parses a single-file unified diff the same way the review
// service does and prints the hunks, line map or change statistics.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/reviewloop/internal/domain/diff"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prdiff",
		Short:         "Inspect unified diffs",
		Long:          "prdiff parses a single-file unified diff into hunks and a line map, as stored in review snapshots.",
		SilenceUsage: true,
	}

	root.AddCommand(newParseCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print prdiff version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prdiff version %s\n", version)
		},
	})
	return root
}

// parseOutput is the JSON document printed by the parse command.
type parseOutput struct {
	Path     string              `json:"path,omitempty"`
	Language string              `json:"language,omitempty"`
	Hunks    []diff.Hunk         `json:"hunks"`
	LineMap  []diff.LineMapEntry `json:"line_map"`
	Orphans  int                 `json:"orphans"`
	Stats    diff.Stats          `json:"stats"`
}

func newParseCmd() *cobra.Command {
	var path string
	var compact bool

	cmd := &cobra.Command{
		Use:   "parse [patch-file]",
		Short: "Print hunks and line map as JSON",
		Long:  "Reads a patch from the given file, or from stdin when the file is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readPatch(cmd, args)
			if err != nil {
				return err
			}

			res := diff.Parse(patch)
			out := parseOutput{
				Path:    path,
				Hunks:   res.Hunks,
				LineMap: res.LineMap,
				Orphans: res.Orphans,
				Stats:   res.Stats(),
			}
			if path != "" {
				out.Language = diff.DetectLanguage(path)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "file path the patch applies to, used for language detection")
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [patch-file]",
		Short: "Print added, deleted and context line counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readPatch(cmd, args)
			if err != nil {
				return err
			}

			res := diff.Parse(patch)
			stats := res.Stats()

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
					diff.Stats
					Hunks   int `json:"hunks"`
					Orphans int `json:"orphans"`
				}{stats, len(res.Hunks), res.Orphans})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "hunks:   %d\n", len(res.Hunks))
			fmt.Fprintf(w, "added:   %d\n", stats.Added)
			fmt.Fprintf(w, "deleted: %d\n", stats.Deleted)
			fmt.Fprintf(w, "context: %d\n", stats.Context)
			if res.Orphans > 0 {
				fmt.Fprintf(w, "orphans: %d (lines outside any hunk)\n", res.Orphans)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print stats as JSON")
	return cmd
}

func readPatch(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read patch: %w", err)
	}
	return string(data), nil
}
