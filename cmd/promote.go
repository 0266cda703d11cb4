package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote accepted temporary assignments inside the proposal window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		promoted, err := svc.Assignments.Promote(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("promoted %d assignments\n", len(promoted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
