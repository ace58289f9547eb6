package ports

import (
	"context"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

// DocumentRepository stores published constraint documents by name.
type DocumentRepository interface {
	Put(ctx context.Context, doc domain.StoredDocument) (domain.StoredDocument, error)
	Get(ctx context.Context, name string) (domain.StoredDocument, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]domain.StoredDocument, error)
}

// DocumentFetcher retrieves the raw bytes of a constraint document. It is
// called at most once per ConstraintStore.
type DocumentFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}
