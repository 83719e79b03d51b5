// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/lecture-engine/internal/cost"
)

var costCmd = &cobra.Command{
	Use:   "cost [file]",
	Short: "Estimate tokens and price for a prompt",
	Long: `Cost estimates the token count of a text (a file, or stdin) at one token
per four characters and prices it as input for the given model, plus
--output-tokens of output. Rates come from the built-in table layered with
the pricing section of the config file. --list prints the table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCost,
}

func init() {
	costCmd.Flags().String("model", "", "model to price (default: the draft agent's model)")
	costCmd.Flags().Int("output-tokens", 0, "expected output tokens")
	costCmd.Flags().Bool("list", false, "print the pricing table")

	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	table := cost.FromConfig(cfg.Pricing)
	out := cmd.OutOrStdout()

	if list, _ := cmd.Flags().GetBool("list"); list {
		models := make([]string, 0, len(table))
		for m := range table {
			models = append(models, m)
		}
		sort.Strings(models)
		fmt.Fprintf(out, "%-28s  %12s  %12s\n", "Model", "Input $/M", "Output $/M")
		for _, m := range models {
			r := table[m]
			fmt.Fprintf(out, "%-28s  %12.2f  %12.2f\n", m, r.InputPerMillion, r.OutputPerMillion)
		}
		return nil
	}

	var data []byte
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = cfg.Agents.Draft.Model
	}
	outTokens, _ := cmd.Flags().GetInt("output-tokens")
	inTokens := cost.EstimateTokens(string(data))

	fmt.Fprintf(out, "Model:          %s\n", model)
	fmt.Fprintf(out, "Input tokens:   %d\n", inTokens)
	fmt.Fprintf(out, "Output tokens:  %d\n", outTokens)
	fmt.Fprintf(out, "Estimated cost: $%.6f\n", table.Cost(model, inTokens, outTokens))
	return nil
}
