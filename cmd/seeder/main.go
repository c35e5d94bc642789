// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/app"
	"github.com/unclebandit/voiceops-backend/internal/config"
	"github.com/unclebandit/voiceops-backend/internal/logger"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/service"
	"github.com/unclebandit/voiceops-backend/internal/sheet"
)

var (
	orgID int64
	force bool
	count int
	seed  int64
)

func main() {
	root := &cobra.Command{
		Use:          "seeder",
		Short:        "Apply the schema and load demo or spreadsheet data",
		SilenceUsage: true,
	}
	root.PersistentFlags().Int64Var(&orgID, "org", 1, "organization id to seed")

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Create a demo campaign with generated targets",
		RunE:  runDemo,
	}
	demo.Flags().BoolVar(&force, "force", false, "seed even if campaigns already exist")
	demo.Flags().IntVar(&count, "targets", 10, "number of generated targets")
	demo.Flags().Int64Var(&seed, "seed", 42, "random seed for generated data")

	importCmd := &cobra.Command{
		Use:   "import <campaign-id> <workbook.xlsx>",
		Short: "Enroll targets from the first sheet of an .xlsx workbook",
		Args:  cobra.ExactArgs(2),
		RunE:  runImport,
	}

	root.AddCommand(demo, importCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func start(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	zl, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		return nil, nil, err
	}
	return a, zl, nil
}

func runDemo(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, zl, err := start(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer zl.Sync()

	_, page, err := a.Campaigns.ListCampaigns(ctx, 1, 1, "")
	if err != nil {
		return err
	}
	if page["total_count"] > 0 && !force {
		zl.Info("database already seeded, skipping")
		return nil
	}

	targets := fakeTargets(count, seed)
	// the last generated number is blocked so the run shows a DNC skip
	if len(targets) > 0 {
		optOut := targets[len(targets)-1].Phone
		if _, _, err := a.Dnc.Add(ctx, service.AddDncInput{OrgID: orgID, Phone: optOut, Reason: "Seeded opt-out"}); err != nil {
			return fmt.Errorf("failed to seed DNC entry: %w", err)
		}
	}

	noVoicemail := false
	campaign, err := a.Campaigns.CreateCampaign(ctx, service.CreateCampaignInput{
		OrgID:   orgID,
		Name:    "Service Pickup Reminders",
		Purpose: "pickup",
		Schedule: &service.ScheduleInput{
			Days:      []string{"MON", "TUE", "WED", "THU", "FRI", "SAT"},
			StartHour: 9,
			EndHour:   18,
			Timezone:  "America/New_York",
		},
		Retry: &service.RetryInput{MaxAttempts: 3, RetryDelayMinutes: 240, RetryOnVoicemail: &noVoicemail},
	})
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	result, err := a.Enrollment.Enroll(ctx, campaign.ID, targets)
	if err != nil {
		return fmt.Errorf("failed to seed targets: %w", err)
	}
	zl.Info("database seeding completed",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int("created", result.Created),
		zap.Int("skipped_dnc", result.SkippedDNC),
	)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	var campaignID int64
	if _, err := fmt.Sscan(args[0], &campaignID); err != nil || campaignID <= 0 {
		return fmt.Errorf("invalid campaign id %q", args[0])
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	targets, err := sheet.ReadTargets(f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, zl, err := start(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer zl.Sync()

	result, err := a.Enrollment.Enroll(ctx, campaignID, targets)
	if err != nil {
		return err
	}
	zl.Info("workbook imported",
		zap.Int64("campaign_id", campaignID),
		zap.Int("rows", len(targets)),
		zap.Int("created", result.Created),
		zap.Int("skipped_dnc", result.SkippedDNC),
		zap.Int("skipped_duplicate", result.SkippedDuplicate),
		zap.Strings("errors", result.Errors),
	)
	return nil
}

// fakeTargets generates customers in the 555 exchange so a demo campaign
// never dials a real subscriber.
func fakeTargets(n int, seed int64) []model.TargetInput {
	gofakeit.Seed(seed)
	targets := make([]model.TargetInput, 0, n)
	for i := 0; i < n; i++ {
		car := gofakeit.Car()
		targets = append(targets, model.TargetInput{
			Phone:        fmt.Sprintf("+1%d555%04d", gofakeit.Number(201, 989), i),
			FullName:     gofakeit.Name(),
			Email:        gofakeit.Email(),
			VehicleMake:  car.Brand,
			VehicleModel: car.Model,
			VehicleYear:  car.Year,
			PlateNumber:  gofakeit.LetterN(3) + gofakeit.DigitN(4),
		})
	}
	return targets
}
