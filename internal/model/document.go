package model

import "time"

// AccessLevel controls who may read a document's content.
type AccessLevel string

const (
	AccessPublic    AccessLevel = "public"
	AccessPrivate   AccessLevel = "private"
	AccessProtected AccessLevel = "protected"
)

// Valid reports whether the access level is one of the enumerated values.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessPublic, AccessPrivate, AccessProtected:
		return true
	}
	return false
}

// Category is derived from the mimetype at upload time.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryPDF      Category = "pdf"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// Valid reports whether the category is one of the enumerated values.
func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryPDF, CategoryDocument, CategoryOther:
		return true
	}
	return false
}

// VersionEntry is one element of the denormalized version history mirrored
// on every record of a chain.
type VersionEntry struct {
	Version    int       `json:"version"`
	DocumentID string    `json:"document_id"`
	UploadDate time.Time `json:"upload_date"`
	UploadedBy string    `json:"uploaded_by"`
}

// Document represents a stored file together with its version and access metadata.
// This is a pure domain model with no database-specific dependencies or tags.
//
// A chain is the set of documents sharing (UploadedBy, BaseFileName). ParentDocument
// points at the chain's root (version 1) and is nil on the root itself.
type Document struct {
	ID           string `json:"id"`
	BaseFileName string `json:"base_file_name"`
	UploadedBy   string `json:"uploaded_by"`

	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	FileHash     string `json:"file_hash"`
	BlobPath     string `json:"blob_path"`
	BlobID       string `json:"blob_id"`

	Version         int            `json:"version"`
	IsLatestVersion bool           `json:"is_latest_version"`
	ParentDocument  *string        `json:"parent_document"`
	VersionHistory  []VersionEntry `json:"version_history"`

	AccessLevel AccessLevel `json:"access_level"`
	// AccessPin holds the salted PIN hash; it never leaves the service.
	AccessPin string `json:"-"`

	DownloadCount int64 `json:"download_count"`

	Category    Category  `json:"category"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RootID returns the id of the chain root this document belongs to.
func (d *Document) RootID() string {
	if d.ParentDocument != nil && *d.ParentDocument != "" {
		return *d.ParentDocument
	}
	return d.ID
}

// HistoryEntry builds the version entry describing this document.
func (d *Document) HistoryEntry() VersionEntry {
	return VersionEntry{
		Version:    d.Version,
		DocumentID: d.ID,
		UploadDate: d.CreatedAt,
		UploadedBy: d.UploadedBy,
	}
}
