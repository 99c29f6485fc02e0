// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"TripWatch/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewProberUsecase,
	NewQuotaUsecase,
	NewActionCatalog,
	NewExecutorUsecase,
	NewMonitorUsecase,
	// Import data layer providers
	data.NewProviderHealthRepo,
	data.NewQuotaRepo,
	data.NewBookingRepo,
	data.NewRecoveryLogRepo,
	data.NewActionQueueRepo,
	data.NewRotationRepo,
	data.NewMaintenanceRepo,
	data.NewWebhookNotifier,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(HealthRepo), new(*data.ProviderHealthRepo)),
	wire.Bind(new(QuotaRepo), new(*data.QuotaRepo)),
	wire.Bind(new(BookingRepo), new(*data.BookingRepo)),
	wire.Bind(new(RecoveryLogRepo), new(*data.RecoveryLogRepoImpl)),
	wire.Bind(new(ActionQueueRepo), new(*data.ActionQueueRepo)),
	wire.Bind(new(RotationRepo), new(*data.RotationRepo)),
	wire.Bind(new(MaintenanceRepo), new(*data.MaintenanceRepo)),
	wire.Bind(new(Notifier), new(*data.WebhookNotifier)),
)
