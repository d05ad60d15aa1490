package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ledgerbook/internal/core"
	"ledgerbook/internal/export"
	"ledgerbook/internal/services"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install missing built-in categories",
		Long:  `Insert the built-in categories newer than the stored registry version. Existing categories are never modified.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			n, err := s.engine.Registry.SeedDefaults(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %d categories\n", n)
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the whole ledger as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			w, closeOut, err := openOutput(out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := s.engine.Backup.Write(cmd.Context(), w); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace the ledger with a backup document",
		Long:  `Validate FILE and replace every transaction, category and budget change with its contents. Nothing is changed when validation fails.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open backup: %w", err)
			}
			defer f.Close()

			res, err := s.engine.Backup.Restore(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d transactions, %d categories, %d budget changes\n",
				res.Transactions, res.Categories, res.BudgetChanges)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out, from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			loc := s.cfg.Location()
			rng, err := parseRangeFlags(from, to, loc)
			if err != nil {
				return err
			}
			rows, err := s.engine.Views.ExportRows(cmd.Context(), rng, loc)
			if err != nil {
				return err
			}
			w, closeOut, err := openOutput(out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := export.WriteCSV(w, rows); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}

func loansCmd() *cobra.Command {
	var direction string
	var byPerson bool
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loans and their repayment status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()

			if byPerson {
				people, err := s.engine.Views.LoanPeople(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "PERSON\tGIVEN\tTAKEN\tREMAINING\tLOANS")
				for _, p := range people {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.PersonName, p.Given, p.Taken, p.Remaining, p.Groups)
				}
				return nil
			}

			groups, err := s.engine.Views.Loans(cmd.Context(), services.LoanDirection(direction), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tPERSON\tDATE\tTOTAL\tPAID\tREMAINING\tSTATUS\tDUE")
			for _, g := range groups {
				due := "-"
				if g.Status.DueDate != nil {
					due = g.Status.DueDate.Format("2006-01-02")
					if g.Status.IsOverdue {
						due += " (overdue)"
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					g.ParentID, g.PersonName, g.Parent.Date.Format("2006-01-02"),
					g.Status.TotalAmount, g.Status.PaidAmount, g.Status.RemainingAmount, g.StatusText, due)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "", "given or taken (default: both)")
	cmd.Flags().BoolVar(&byPerson, "by-person", false, "summarise per person")
	return cmd
}

func fuelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fuel",
		Short: "Show fuel fills with distance and mileage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			stats, err := s.engine.Views.FuelStats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tODOMETER\tFUEL\tCOST\tDISTANCE\tMILEAGE")
			for _, f := range stats.Fills {
				d, _ := f.Transaction.Fuel()
				fmt.Fprintf(w, "%s\t%.0f\t%.2f\t%s\t%s\t%s\n",
					f.Transaction.Date.Format("2006-01-02"), odometer(d), fuelQty(d), f.Transaction.Amount,
					optional(f.Distance, "%.0f"), optional(f.Mileage, "%.2f"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nDistance %.0f, fuel %.2f, cost %s, overall %.2f per unit\n",
				stats.TotalDistance, stats.TotalFuel, stats.TotalCost, stats.OverallMileage)
			return nil
		},
	}
}

func odometer(d *core.FuelDetails) float64 {
	if d == nil {
		return 0
	}
	return d.OdometerReading
}

func fuelQty(d *core.FuelDetails) float64 {
	if d == nil {
		return 0
	}
	return d.FuelQuantity
}

func optional(v float64, format string) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf(format, v)
}
