package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

type auditModel struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Document string    `gorm:"column:document;not null"`
	Revision string    `gorm:"column:revision;not null"`
	Action   string    `gorm:"column:action;not null"`
	Actor    string    `gorm:"column:actor;not null"`
	At       time.Time `gorm:"column:at;not null"`
}

func (auditModel) TableName() string {
	return "audit_logs"
}

type AuditRepository struct {
	db *gormsqlite.DB
}

func NewAuditRepository(db *gormsqlite.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, event domain.AuditEvent) error {
	model := auditModel{
		Document: event.Document,
		Revision: event.Revision,
		Action:   event.Action,
		Actor:    event.Actor,
		At:       event.At,
	}
	if model.At.IsZero() {
		model.At = time.Now().UTC()
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns events newest first. AfterID is a cursor: only events with a
// smaller id are returned.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	var rows []auditModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditModel{})
		if filter.Document != "" {
			query = query.Where("document = ?", filter.Document)
		}
		if filter.AfterID > 0 {
			query = query.Where("id < ?", filter.AfterID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	out := make([]domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AuditEvent{
			ID:       row.ID,
			Document: row.Document,
			Revision: row.Revision,
			Action:   row.Action,
			Actor:    row.Actor,
			At:       row.At,
		})
	}
	return out, nil
}
