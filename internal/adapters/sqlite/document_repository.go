package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentModel struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Revision  string    `gorm:"column:revision;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (documentModel) TableName() string {
	return "documents"
}

type DocumentRepository struct {
	db *gormsqlite.DB
}

func NewDocumentRepository(db *gormsqlite.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Put inserts or replaces the document stored under doc.Name. CreatedAt of an
// existing row is kept.
func (r *DocumentRepository) Put(ctx context.Context, doc domain.StoredDocument) (domain.StoredDocument, error) {
	now := time.Now().UTC()
	model := documentModel{
		Name:      doc.Name,
		Revision:  doc.Revision,
		Body:      string(doc.Body),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var out domain.StoredDocument
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"revision", "body", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}

		var saved documentModel
		if err := tx.Where("name = ?", doc.Name).First(&saved).Error; err != nil {
			return fmt.Errorf("load stored document: %w", err)
		}
		out = toDocumentDomain(saved)
		return nil
	})
	if err != nil {
		return domain.StoredDocument{}, err
	}
	return out, nil
}

func (r *DocumentRepository) Get(ctx context.Context, name string) (domain.StoredDocument, error) {
	var model documentModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("name = ?", name).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoredDocument{}, domain.ErrNotFound
		}
		return domain.StoredDocument{}, fmt.Errorf("get document: %w", err)
	}
	return toDocumentDomain(model), nil
}

func (r *DocumentRepository) Delete(ctx context.Context, name string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("name = ?", name).Delete(&documentModel{})
		if res.Error != nil {
			return fmt.Errorf("delete document: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// List returns all documents ordered by name, without their bodies.
func (r *DocumentRepository) List(ctx context.Context) ([]domain.StoredDocument, error) {
	var rows []documentModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Select("name", "revision", "created_at", "updated_at").Order("name ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]domain.StoredDocument, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDocumentDomain(row))
	}
	return out, nil
}

func toDocumentDomain(model documentModel) domain.StoredDocument {
	var body json.RawMessage
	if model.Body != "" {
		body = json.RawMessage(model.Body)
	}
	return domain.StoredDocument{
		Name:      model.Name,
		Revision:  model.Revision,
		Body:      body,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
