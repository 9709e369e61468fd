package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one forward replication pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.close()

			run := eng.coord.RunOnce
			if full {
				run = eng.coord.ForceFull
			}
			report, err := run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "ignore watermarks and rescan every collection")
	return cmd
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Copy standby documents and users back into primary after a failover",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.close()

			report, err := eng.coord.Recover(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare both sides and report drift without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.close()

			report, err := eng.coord.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
