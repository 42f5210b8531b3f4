// Command print-server drives the physical printer. It queues jobs from the
// controller, prints them one at a time and reports each outcome back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orrn/diaryprint/internal/api"
	"github.com/orrn/diaryprint/internal/auth"
	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/logger"
	"github.com/orrn/diaryprint/internal/printer"
	"github.com/orrn/diaryprint/internal/queue"
	"github.com/orrn/diaryprint/internal/webhook"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "print-server",
	Short: "Prints diary pages and reports completion to the controller",
	Long: `print-server owns the printer. Jobs submitted by the controller are queued
and printed strictly one at a time with a cooldown between jobs. When a job
finishes, its outcome is posted to the controller's completion webhook.

Printer backends:
  cups      lp/lpstat against a local CUPS queue
  ipp       direct IPP to a network printer
  simulate  no hardware, pages are only validated
  auto      cups on linux, simulate elsewhere`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the print server HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the configured printer is ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		driver, err := printer.New(cfg.Printer, logger.New(cfg.Logging, os.Stderr))
		if err != nil {
			return err
		}

		status := driver.CheckStatus(cmd.Context())
		cmd.Printf("Backend:   %s\nPrinter:   %s\nAvailable: %t\nMessage:   %s\n",
			driver.BackendName(), cfg.Printer.Name, status.Available, status.Message)
		if status.Details != "" {
			cmd.Printf("Details:   %s\n", status.Details)
		}
		if !status.Available {
			return fmt.Errorf("printer %s is not available", cfg.Printer.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a dotenv file")
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Logging, os.Stdout)

	driver, err := printer.New(cfg.Printer, log)
	if err != nil {
		return err
	}
	status := driver.CheckStatus(ctx)
	log.Info("printer driver ready",
		"backend", driver.BackendName(),
		"printer", cfg.Printer.Name,
		"available", status.Available,
		"message", status.Message)

	sender := webhook.NewSender(cfg.Webhook, cfg.PrintServer.BackendURL,
		auth.NewIssuer(cfg.Auth.ServiceSecret, auth.IssuerPrintServer), log)
	sender.Start()

	processor := queue.NewProcessor(driver, sender, queue.Options{
		Cooldown: cfg.PrintServer.JobCooldown,
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(fmt.Sprintf(":%d", cfg.PrintServer.Port),
		api.NewPrintServerRouter(processor, driver, cfg.Auth.ServiceSecret, log), log)
	runErr := srv.Run(ctx)

	// Leave room for the in-flight job's outcome to reach the controller.
	stopCtx, cancel := context.WithTimeout(context.Background(),
		cfg.PrintServer.JobCooldown+cfg.Webhook.Timeout*2+2*cfg.Printer.SettleTime)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		log.Warn("print queue did not stop cleanly", "error", err)
	}
	if err := sender.Stop(stopCtx); err != nil {
		log.Warn("webhook sender did not stop cleanly", "error", err)
	}
	return runErr
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
