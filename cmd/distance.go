package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var distanceLimit int

var distanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Run one distance batch and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		res, err := svc.Batch.Run(ctx, distanceLimit)
		fmt.Printf("computed %d, skipped %d, remaining %d, quota remaining %d\n",
			res.Computed, len(res.Skipped), res.Remaining, res.QuotaRemaining)
		for _, skip := range res.Skipped {
			fmt.Printf("  skipped (%s, %s): %s\n", skip.InstructorID, skip.UnitID, skip.Reason)
		}
		return err
	},
}

func init() {
	distanceCmd.Flags().IntVar(&distanceLimit, "limit", 0, "max pairs to compute (0 uses the configured default)")
	rootCmd.AddCommand(distanceCmd)
}
