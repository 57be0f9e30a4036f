package repository

import (
	"context"

	"docvault/internal/model"
)

// DocumentRepository defines data access for document metadata.
// Strictly persistence operations. Conflicting writes are serialized by the
// store's unique indexes, never in application memory.
type DocumentRepository interface {
	// FindByID returns a document by its ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindChain returns every record of the (ownerID, baseFileName) chain, highest version first.
	FindChain(ctx context.Context, ownerID, baseFileName string) ([]model.Document, error)

	// InsertLatest clears the latest flag on the chain and inserts doc as its new latest
	// member in a single transaction. A concurrent writer that claimed the same version
	// or latest slot first yields ErrDuplicate and nothing is written.
	InsertLatest(ctx context.Context, doc *model.Document) (*model.Document, error)

	// TransferLatest moves the latest flag from one chain member to another atomically.
	TransferLatest(ctx context.Context, fromID, toID string) error

	// Reroot makes newRootID the chain root: its parent is cleared and every other
	// member of the chain points at it.
	Reroot(ctx context.Context, ownerID, baseFileName, newRootID string) error

	// AppendHistory appends entry to the version history of the root and every record
	// whose parent is the root. Records already holding the entry are left untouched.
	AppendHistory(ctx context.Context, rootID string, entry model.VersionEntry) error

	// PruneHistory removes documentID's entry from the root and its children.
	PruneHistory(ctx context.Context, rootID, documentID string) error

	// IncrementDownloadCount bumps the download counter by one.
	IncrementDownloadCount(ctx context.Context, id string) error

	// List returns a filtered, paginated list of documents and the total count matching the filter.
	List(ctx context.Context, q ListQuery) (*PageResult[model.Document], error)

	// Delete removes a document by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// ListQuery combines pagination with visibility and search filters.
type ListQuery struct {
	PageQuery
	// ViewerID restricts results to documents the viewer owns plus public and
	// protected ones. Ignored when ViewerIsAdmin is set.
	ViewerID      string
	ViewerIsAdmin bool
	Category      model.Category
	// Search is matched case-insensitively against name, description, tags and base name.
	Search      string
	AllVersions bool
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
