package biz

import "context"

// RotationRepo defines the provider rotation order interface.
// Implementation is in data layer (data.RotationRepo).
type RotationRepo interface {
	GetOrder(ctx context.Context) ([]string, error)
	SetOrder(ctx context.Context, order []string) error
}
