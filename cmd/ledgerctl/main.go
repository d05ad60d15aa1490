package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledgerbook/internal/cli"
	applog "ledgerbook/internal/log"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer a ledgerbook store",
		Long:          `ledgerctl seeds, backs up, restores and reports on the ledger configured by the environment (DATA_BACKEND, SQLITE_DB_PATH, TIMEZONE).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(seedCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(loansCmd())
	root.AddCommand(fuelCmd())
	return root
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLoggerTo(nil, applog.ComponentCLI, os.Stderr)

	ctx, stop := cli.SignalContext(logger)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
