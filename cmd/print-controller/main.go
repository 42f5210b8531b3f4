// Command print-controller serves the frontend print API, tracks job status
// and forwards jobs to the print server.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orrn/diaryprint/internal/api"
	"github.com/orrn/diaryprint/internal/auth"
	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/controller"
	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/db"
	"github.com/orrn/diaryprint/internal/logger"
	"github.com/orrn/diaryprint/internal/printclient"
	"github.com/orrn/diaryprint/internal/store"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "print-controller",
	Short: "Accepts diary print requests and dispatches them to the print server",
	Long: `print-controller is the frontend-facing half of the diary printing pipeline.

It validates print requests against stored diaries, records a job per request
and hands the selected pages to the print server in the background. The print
server reports the outcome back through the completion webhook.

Configuration is read from the YAML file given by --config, then the dotenv
file given by --env-file, then the process environment.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed [page images...]",
	Short: "Store a diary and its rendered pages in the database",
	Long: `Store a diary and its printable pages so it can be printed.

Page images are numbered in the order given, starting at 1.

Example:
  print-controller seed --diary-id D1 --user-id U1 --title "Summer" page1.png page2.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		diary := &core.Diary{}
		diary.ID, _ = flags.GetString("diary-id")
		diary.UserID, _ = flags.GetString("user-id")
		diary.Title, _ = flags.GetString("title")
		diary.Date, _ = flags.GetString("date")
		mimeType, _ := flags.GetString("mime-type")

		if diary.ID == "" || diary.UserID == "" {
			return fmt.Errorf("--diary-id and --user-id are required")
		}

		var printable *core.PrintableDiary
		if len(args) > 0 {
			printable = &core.PrintableDiary{DiaryID: diary.ID, MimeType: mimeType}
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read page image: %w", err)
				}
				printable.Pages = append(printable.Pages, core.Page{
					PageNumber: i + 1,
					ImageData:  base64.StdEncoding.EncodeToString(data),
				})
			}
		}

		database, err := db.Open(db.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.SaveDiary(cmd.Context(), diary, printable); err != nil {
			return err
		}
		cmd.Printf("Stored diary %s with %d page(s)\n", diary.ID, len(args))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored pages of a diary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(db.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer database.Close()

		diary, err := database.GetDiary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Diary:  %s (%s)\nUser:   %s\nDate:   %s\n", diary.ID, diary.Title, diary.UserID, diary.Date)

		printable, err := database.GetPrintable(cmd.Context(), args[0])
		if err != nil {
			cmd.Println("Pages:  not rendered")
			return nil
		}
		numbers := make([]string, 0, len(printable.Pages))
		for _, p := range printable.Pages {
			numbers = append(numbers, strconv.Itoa(p.PageNumber))
		}
		cmd.Printf("Pages:  %d %v (%s)\n", len(printable.Pages), numbers, printable.MimeType)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a dotenv file")

	seedCmd.Flags().String("diary-id", "", "diary id")
	seedCmd.Flags().String("user-id", "", "owner user id")
	seedCmd.Flags().String("title", "", "diary title")
	seedCmd.Flags().String("date", time.Now().Format("2006-01-02"), "diary date")
	seedCmd.Flags().String("mime-type", "image/png", "mime type of the page images")

	rootCmd.AddCommand(serveCmd, seedCmd, statusCmd)
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

	var diaries controller.DiarySource
	if cfg.Database.Path != "" {
		database, err := db.Open(db.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer database.Close()
		diaries = database
		log.Info("diary database opened", "path", cfg.Database.Path)
	} else {
		diaries = db.NewMemoryRepository()
		log.Warn("no database path configured, using an empty in-memory diary store")
	}

	client := printclient.New(cfg.Controller.PrintServerURL, printclient.Options{
		DispatchTimeout: cfg.Controller.DispatchTimeout,
		StatusTimeout:   cfg.Controller.StatusTimeout,
		Issuer:          auth.NewIssuer(cfg.Auth.ServiceSecret, auth.IssuerController),
	})

	ctrl := controller.New(diaries, store.NewMemoryJobStore(), client, controller.Options{
		DispatchWorkers:   cfg.Controller.DispatchWorkers,
		DispatchQueueSize: cfg.Controller.DispatchQueueSize,
		ReconcileInterval: cfg.Controller.ReconcileInterval,
		StaleAfter:        cfg.Controller.StaleAfter,
		Logger:            log,
	})
	ctrl.Start()

	if cfg.Auth.ServiceSecret == "" {
		log.Warn("service secret is empty, service-to-service calls are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(fmt.Sprintf(":%d", cfg.Controller.Port),
		api.NewControllerRouter(ctrl, cfg.Auth.ServiceSecret, log), log)
	runErr := srv.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Controller.DispatchTimeout)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		log.Warn("dispatch workers did not stop cleanly", "error", err)
	}
	return runErr
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
