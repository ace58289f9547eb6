package ports

import (
	"context"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

type AuditRepository interface {
	Log(ctx context.Context, event domain.AuditEvent) error
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
