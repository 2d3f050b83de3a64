package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/worklens/worklens/internal/compliance"
	compliancepg "github.com/worklens/worklens/internal/compliance/postgres"
	"github.com/worklens/worklens/internal/tracking"
	trackingpg "github.com/worklens/worklens/internal/tracking/postgres"
	"github.com/worklens/worklens/pkg/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one compliance evaluation pass",
	Long:  `Evaluate all compliance rules against the mirrored tracker data once and print the run summary.`,
	Run: func(cmd *cobra.Command, args []string) {
		runCheckOnce()
	},
}

func runCheckOnce() {
	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	logg := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		log.Fatalf("failed to init orm: %v", err)
	}

	trackingRepo := trackingpg.NewTrackingRepository(gormDB)
	violationRepo := compliancepg.NewViolationRepository(gormDB)
	configRepo := compliancepg.NewConfigRepository(gormDB)

	configService := compliance.NewConfigService(configRepo, logg)
	violationService := compliance.NewService(violationRepo, logg)
	loader := tracking.NewSnapshotLoader(trackingRepo, logg)
	runner := compliance.NewRunner(configService, loader, compliance.DefaultEvaluators(), violationService, nil, nil, logg)

	summary := runner.RunCheck()
	runner.Wait()

	final, err := runner.GetRun(summary.RunID)
	if err != nil {
		log.Fatalf("run disappeared: %v", err)
	}

	out, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		log.Fatalf("failed to render summary: %v", err)
	}
	fmt.Println(string(out))

	if final.Status == compliance.RunStatusFailed {
		os.Exit(1)
	}
}
