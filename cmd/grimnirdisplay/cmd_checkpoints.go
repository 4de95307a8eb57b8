/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_display/internal/db"
)

var recoveriesLimit int

var recoveriesCmd = &cobra.Command{
	Use:   "recoveries",
	Short: "List recent recovery attempts on this display",
	RunE:  runRecoveries,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <asset>",
	Short: "Drop the saved position of an asset so it plays from the start",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	recoveriesCmd.Flags().IntVarP(&recoveriesLimit, "limit", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(recoveriesCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runRecoveries(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, database, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := st.RecentRecoveries(ctx, recoveriesLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tASSET\tSTRATEGY\tATTEMPT\tRESULT")
	for _, r := range records {
		result := "issued"
		switch {
		case r.Exhausted:
			result = "exhausted"
		case r.Error != "":
			result = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.OccurredAt.Format(time.RFC3339), r.MediaKey, r.Strategy, r.AttemptIndex, result)
	}
	return w.Flush()
}

func runForget(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, database, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.DeleteCheckpoint(ctx, args[0]); err != nil {
		return err
	}
	logger.Info().Str("asset", args[0]).Msg("checkpoint removed")
	return nil
}
