package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fleetfix/internal/config"
	"fleetfix/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sweepDSN     string
	sweepTimeout time.Duration
)

// sweepCmd 手动触发一次 SLA 升级扫描，打印结果后退出。
// Useful for cron-from-outside setups and for debugging rule behavior
// without a running server.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single SLA escalation sweep and print the result",
	Long: `Connects to the database, evaluates every active SLA escalation rule
against all non-terminal work orders, then prints the sweep outcome as JSON.

The sla_monitoring_enabled setting is honored: when disabled the sweep
exits immediately with zero entities checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		dsn := sweepDSN
		if dsn == "" {
			dsn = os.Getenv("DB_DSN")
		}
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
				cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
		}

		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)

		settingsService := services.NewSettingsService(db)
		snapshots := services.NewSnapshotProvider(db)
		evaluator := services.NewConditionEvaluator(log)
		selector := services.NewRuleSelector(db, evaluator, log)
		notificationService := services.NewNotificationService(db, log, nil)
		executor := services.NewActionExecutor(db, log, notificationService)
		automationService := services.NewAutomationService(db, log, snapshots, selector, executor)
		sweeper := services.NewEscalationSweeper(db, log, settingsService, snapshots, automationService, cfg.Automation.SweepWorkers)

		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		result, err := sweeper.RunSweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepDSN, "dsn", "", "Postgres DSN (default: DB_DSN env or config file)")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 2*time.Minute, "overall sweep timeout")
	rootCmd.AddCommand(sweepCmd)
}
