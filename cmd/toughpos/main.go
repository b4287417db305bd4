package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkincode/toughpos/config"
	"github.com/talkincode/toughpos/internal/adminapi"
	"github.com/talkincode/toughpos/internal/app"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/report"
	"github.com/talkincode/toughpos/internal/webserver"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "toughpos",
		Short:         "Point of sale and inventory server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default toughpos.yml)")
	root.AddCommand(serveCmd(), initdbCmd(), migrateCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() *app.Application {
	cfg := config.LoadConfig(cfgFile)
	a := app.NewApplication(cfg)
	a.Init(cfg)
	return a
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin api and the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := setup()
			defer a.Release()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.StartBackgroundJobs(ctx)
			adminapi.Init()
			srv := webserver.NewAdminServer(a)

			errc := make(chan error, 1)
			go func() {
				errc <- srv.Start()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			zap.L().Info("shutting down", zap.String("namespace", "main"))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func initdbCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Drop every table, recreate the schema and seed defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("initdb destroys all data, rerun with --yes")
			}
			a := setup()
			defer a.Release()
			a.InitDb()
			fmt.Println("database initialized")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all data")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := setup()
			defer a.Release()
			return a.MigrateDB(true)
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to files",
	}
	cmd.AddCommand(exportSalesCmd())
	return cmd
}

func exportSalesCmd() *cobra.Command {
	var start, end, out string
	cmd := &cobra.Command{
		Use:   "sales",
		Short: "Export sales of a date range to csv or xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			format := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("output file must end with .csv or .xlsx")
			}
			r, err := report.ParseRange(start, end, time.Local)
			if err != nil {
				return err
			}

			a := setup()
			defer a.Release()
			sales, _, err := a.Checkout().ListSales(cmd.Context(), checkout.SaleFilter{Start: r.Start, End: r.End})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if format == "xlsx" {
				err = report.WriteXLSX(f, sales)
			} else {
				err = report.WriteCSV(f, sales)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%d sales written to %s\n", len(sales), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, defaults to today")
	cmd.Flags().StringVar(&end, "end", "", "last day, defaults to today")
	cmd.Flags().StringVarP(&out, "output", "o", "sales.csv", "output file")
	return cmd
}
