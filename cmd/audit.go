package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List accepted assignments without a dispatched confirmation message",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		missing, err := svc.Assignments.Audit(ctx)
		if err != nil {
			return err
		}
		for _, a := range missing {
			fmt.Printf("%s schedule=%s instructor=%s date=%s\n",
				a.ID, a.ScheduleID, a.InstructorID, a.Date.Format("2006-01-02"))
		}
		fmt.Printf("%d accepted assignments lack a confirmation message\n", len(missing))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
