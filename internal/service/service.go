// Package service exposes the business use cases over transport handlers.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewRecoveryService)
