package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/pkg/constants"
)

var ErrNoTenant = errors.New("no tenant found in context")

// Tenant is the per-request tenant snapshot carried on the context.
type Tenant struct {
	ID   uuid.UUID
	Name string
}

func WithTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, id)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}
