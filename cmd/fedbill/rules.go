package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fedbill/internal/pricing"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Finance plan rule utilities",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a finance plan rules file",
	Long:  `Parse a rules file and print its normalized form. Exits non-zero on the first invalid rule.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rules, err := pricing.ParseRules(string(content))
		if err != nil {
			return err
		}
		// duplicate (item, state) pairs only surface when building a policy
		if _, err := pricing.NewPolicy(decimal.Zero, rules); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, pricing.FormatRules(rules))
		fmt.Fprintf(out, "\n%d rules OK\n", len(rules))
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
}
