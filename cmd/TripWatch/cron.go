package main

import (
	"context"
	"time"

	"TripWatch/internal/biz"
	"TripWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartMaintenanceCron schedules the recurring maintenance actions.
// fix_stuck_bookings runs hourly, optimize_database nightly at 03:00 when
// booking traffic is at its lowest.
func StartMaintenanceCron(executor *biz.ExecutorUsecase, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	// Hourly, on the hour: expire bookings stuck in pending.
	_, err := c.AddFunc("0 0 * * * *", func() {
		helper.Info("Starting stuck booking sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result := executor.Execute(ctx, &model.RecoveryRequest{
			Action: model.ActionFixStuckBookings,
			PlanID: "cron-stuck-bookings",
		})
		if !result.Success {
			helper.Errorw("stuck booking sweep failed", "message", result.Message)
		} else {
			helper.Infow("stuck booking sweep completed", "message", result.Message)
		}
	})
	if err != nil {
		helper.Errorw("failed to register stuck booking cron job", "error", err)
		return nil
	}

	// Nightly at 03:00: analyze tables and purge expired recovery logs.
	_, err = c.AddFunc("0 0 3 * * *", func() {
		helper.Info("Starting database maintenance...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		result := executor.Execute(ctx, &model.RecoveryRequest{
			Action:  model.ActionOptimizeDatabase,
			PlanID:  "cron-db-maintenance",
			Timeout: 30 * time.Minute,
		})
		if !result.Success {
			helper.Errorw("database maintenance failed", "message", result.Message)
		} else {
			helper.Infow("database maintenance completed", "message", result.Message)
		}
	})
	if err != nil {
		helper.Errorw("failed to register database maintenance cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("Maintenance cron jobs started: stuck booking sweep hourly, database maintenance nightly at 03:00")

	return c
}
