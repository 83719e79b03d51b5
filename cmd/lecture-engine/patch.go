// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/lecture-engine/internal/patch"
)

var patchCmd = &cobra.Command{
	Use:   "patch <document> <edits>",
	Short: "Apply SEARCH/REPLACE edits to a document",
	Long: `Patch applies the edits in the second file to the first, the same way the
pipeline applies polish edits. Edits are SEARCH/REPLACE blocks or a JSON
array of {"search","replace"} objects. Each edit replaces the first exact
occurrence of its search text; edits that do not match are reported and
skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runPatch,
}

func init() {
	patchCmd.Flags().BoolP("in-place", "i", false, "overwrite the document instead of printing it")
	patchCmd.Flags().Bool("json", false, "print the result as JSON")

	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	raw, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading edits: %w", err)
	}

	blocks := patch.ParseBlocks(string(raw))
	if len(blocks) == 0 {
		return fmt.Errorf("no edits found in %s", args[1])
	}
	res := patch.Apply(string(doc), blocks)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	errw := cmd.ErrOrStderr()
	for _, s := range res.Skipped {
		fmt.Fprintf(errw, "Skipped edit %d: %s\n", s.Index+1, s.Reason)
	}
	fmt.Fprintf(errw, "Applied %d of %d edits (%s)\n", res.Applied, len(blocks), patch.Summarize(string(doc), res.Text))

	if inPlace, _ := cmd.Flags().GetBool("in-place"); inPlace {
		if !res.Changed() {
			return nil
		}
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		return os.WriteFile(args[0], []byte(res.Text), info.Mode().Perm())
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), res.Text)
	return err
}
