package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every configured model once and print its status",
	Long: `check loads each configured model from the artifact source, prints
the load statuses as JSON and exits non-zero when any model is unavailable.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	report := rt.registry.LoadAll(cmd.Context())
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(rt.registry.Statuses()); err != nil {
		return err
	}
	if !report.Healthy() {
		return errors.New("one or more models failed to load")
	}
	return nil
}
