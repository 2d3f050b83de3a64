package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/worklens/worklens/internal/compliance"
	"github.com/worklens/worklens/internal/tracking"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample mirrored tracker data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlxDB.Close()

		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"violations", "time_entries", "issues", "projects", "users", "compliance_configs"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		if err := seedTrackerData(db); err != nil {
			log.Fatalf("failed to seed tracker data: %v", err)
		}

		if err := seedDefaultConfig(db); err != nil {
			log.Fatalf("failed to seed config: %v", err)
		}

		fmt.Println("Seeding complete")
	},
}

func seedTrackerData(db *gorm.DB) error {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	managerID := int64(1)
	estimate := 16.0
	smallEstimate := 4.0

	users := []tracking.User{
		{ID: 1, ExternalID: 101, Name: "Dina Manager", Email: "dina@worklens.dev", Role: tracking.RoleManager, IsActive: true},
		{ID: 2, ExternalID: 102, Name: "Arif Developer", Email: "arif@worklens.dev", Role: tracking.RoleUser, ManagerID: &managerID, IsActive: true},
		{ID: 3, ExternalID: 103, Name: "Sari Developer", Email: "sari@worklens.dev", Role: tracking.RoleUser, ManagerID: &managerID, IsActive: true},
		{ID: 4, ExternalID: 104, Name: "Budi Former", Email: "budi@worklens.dev", Role: tracking.RoleUser, ManagerID: &managerID, IsActive: false},
	}

	projects := []tracking.Project{
		{ID: 1, ExternalID: 201, Name: "Billing Platform", Status: tracking.ProjectStatusActive, ManagerID: &managerID},
		{ID: 2, ExternalID: 202, Name: "Legacy Portal", Status: tracking.ProjectStatusArchived, ManagerID: &managerID},
	}

	arif, sari := int64(2), int64(3)
	issues := []tracking.Issue{
		{ID: 1, ExternalID: 301, ProjectID: 1, AssigneeID: &arif, Subject: "Invoice rounding errors", Status: tracking.IssueStatusInProgress, EstimatedHours: &estimate, CreatedOn: today.AddDate(0, 0, -40)},
		{ID: 2, ExternalID: 302, ProjectID: 1, AssigneeID: &sari, Subject: "Export statements to CSV", Status: tracking.IssueStatusOpen, EstimatedHours: &smallEstimate, CreatedOn: today.AddDate(0, 0, -30)},
		{ID: 3, ExternalID: 303, ProjectID: 1, AssigneeID: &arif, Subject: "Quarterly tax report", Status: tracking.IssueStatusOpen, CreatedOn: today.AddDate(0, 0, -25)},
		{ID: 4, ExternalID: 304, ProjectID: 2, AssigneeID: &sari, Subject: "Retire portal login", Status: tracking.IssueStatusClosed, EstimatedHours: &smallEstimate, CreatedOn: today.AddDate(0, 0, -90)},
	}

	issue1, issue2 := int64(1), int64(2)
	batch := today.AddDate(0, 0, -2).Add(17 * time.Hour)
	entries := []tracking.TimeEntry{
		// overruns the 4h estimate on issue 2
		{ID: 1, ExternalID: 401, UserID: 3, IssueID: &issue2, ProjectID: 1, Hours: 6.5, SpentOn: today.AddDate(0, 0, -3), LoggedAt: today.AddDate(0, 0, -3).Add(18 * time.Hour)},
		{ID: 2, ExternalID: 402, UserID: 3, IssueID: &issue2, ProjectID: 1, Hours: 3.0, SpentOn: today.AddDate(0, 0, -1), LoggedAt: today.AddDate(0, 0, -1).Add(18 * time.Hour)},
		// logged nine days after the work date
		{ID: 3, ExternalID: 403, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 2.5, SpentOn: today.AddDate(0, 0, -12), LoggedAt: today.AddDate(0, 0, -3).Add(9 * time.Hour)},
		// one backfill batch of whole-hour entries
		{ID: 4, ExternalID: 404, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 8, SpentOn: today.AddDate(0, 0, -9), LoggedAt: batch},
		{ID: 5, ExternalID: 405, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 8, SpentOn: today.AddDate(0, 0, -8), LoggedAt: batch},
		{ID: 6, ExternalID: 406, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 8, SpentOn: today.AddDate(0, 0, -7), LoggedAt: batch},
		{ID: 7, ExternalID: 407, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 8, SpentOn: today.AddDate(0, 0, -6), LoggedAt: batch},
		{ID: 8, ExternalID: 408, UserID: 2, IssueID: &issue1, ProjectID: 1, Hours: 8, SpentOn: today.AddDate(0, 0, -5), LoggedAt: batch},
	}

	if err := db.Save(&users).Error; err != nil {
		return fmt.Errorf("users: %w", err)
	}
	if err := db.Save(&projects).Error; err != nil {
		return fmt.Errorf("projects: %w", err)
	}
	if err := db.Save(&issues).Error; err != nil {
		return fmt.Errorf("issues: %w", err)
	}
	if err := db.Save(&entries).Error; err != nil {
		return fmt.Errorf("time entries: %w", err)
	}

	fmt.Printf("Seeded %d users, %d projects, %d issues, %d time entries\n",
		len(users), len(projects), len(issues), len(entries))
	return nil
}

func seedDefaultConfig(db *gorm.DB) error {
	var count int64
	if err := db.Model(&compliance.Config{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		fmt.Println("Compliance config already present; skipping")
		return nil
	}

	cfg := compliance.DefaultConfig()
	if err := db.Create(cfg).Error; err != nil {
		return err
	}
	fmt.Println("Seeded default compliance config")
	return nil
}
