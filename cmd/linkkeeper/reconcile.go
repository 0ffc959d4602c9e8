package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Turn every pending share into a saved link once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, _, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reconciler.Run(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
