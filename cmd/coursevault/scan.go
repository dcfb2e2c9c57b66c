package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/modules/catalogmodule"
	"github.com/mantonx/coursevault/internal/modules/scannermodule"
	"github.com/mantonx/coursevault/internal/modules/scannermodule/scanner"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// scanReport is what the scan and import commands print per course
type scanReport struct {
	CourseID uint               `json:"course_id"`
	Name     string             `json:"name,omitempty"`
	Result   scanner.ScanResult `json:"result"`
	Progress scanner.ScanState  `json:"progress"`
}

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <course-id>",
		Short: "Run one synchronous scan pass for a course and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid course id: %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			scans, err := startScanner(db, cfg)
			if err != nil {
				return err
			}
			defer stopScanner(scans)

			var course database.Course
			if err := db.WithContext(cmd.Context()).First(&course, id).Error; err != nil {
				return fmt.Errorf("course %d: %w", id, err)
			}

			report, err := scanCourse(cmd.Context(), scans, course)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Register every subdirectory of dir as a course and scan each one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			scans, err := startScanner(db, cfg)
			if err != nil {
				return err
			}
			defer stopScanner(scans)

			service := catalogmodule.NewService(db, cfg.Storage)
			added, err := service.ImportAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			reports := make([]scanReport, 0, len(added))
			for _, course := range added {
				report, err := scanCourse(cmd.Context(), scans, course)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"added":   len(added),
				"courses": reports,
			})
		},
	}
}

// startScanner builds a scanner module without watching; the CLI runs scans
// inline rather than through the queue
func startScanner(db *gorm.DB, cfg *config.Config) (*scannermodule.Module, error) {
	scanCfg := cfg.Scanner
	scanCfg.WatchEnabled = false
	scans := scannermodule.NewModule(db, nil, scanCfg)
	if err := scans.Init(); err != nil {
		return nil, fmt.Errorf("failed to start scanner: %w", err)
	}
	return scans, nil
}

func stopScanner(scans *scannermodule.Module) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scans.Shutdown(ctx)
}

func scanCourse(ctx context.Context, scans *scannermodule.Module, course database.Course) (scanReport, error) {
	result, err := scans.ScanNow(ctx, course.ID)
	if err != nil {
		return scanReport{}, err
	}
	return scanReport{
		CourseID: course.ID,
		Name:     course.Name,
		Result:   result,
		Progress: scans.ReadProgress(course.ID),
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
