// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
)

var repairCmd = &cobra.Command{
	Use:   "repair [file]",
	Short: "Recover JSON from model output",
	Long: `Repair reads text (a file, or stdin) that should contain JSON, such as a raw
model answer with prose around it, code fences, or trailing commas, and
prints the recovered JSON indented. The strategy that worked is reported on
stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fixed, strategy, err := jsonrepair.Repair(string(data))
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, []byte(fixed), "", "  "); err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	out.WriteByte('\n')

	fmt.Fprintf(cmd.ErrOrStderr(), "Recovered with strategy: %s\n", strategy)
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}
