package repository

import (
	"context"

	"orderflow/internal/domain/model"
)

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	ListByResource(ctx context.Context, resourceType string, resourceID string) ([]model.AuditLog, error)
}
