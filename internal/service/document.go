package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docvault/internal/access"
	"docvault/internal/chain"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/retrieval"
	"docvault/internal/storage"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// UploadInput carries a new file and its access settings.
type UploadInput struct {
	OwnerID      string
	Data         []byte
	OriginalName string
	// MimeType is the client-declared type; empty or octet-stream triggers detection.
	MimeType    string
	AccessLevel model.AccessLevel
	PIN         string
	Description string
	Tags        []string
}

// DownloadResult holds the bytes of a document and what a client needs to serve them.
type DownloadResult struct {
	Data     []byte
	MimeType string
	Filename string
	Size     int64
	Strategy retrieval.Strategy
}

// DeleteResult reports how far blob cleanup got; metadata is always removed on success.
type DeleteResult struct {
	BlobRemoved bool `json:"blob_removed"`
}

// ListFilter narrows a document listing.
type ListFilter struct {
	Category    model.Category
	Search      string
	AllVersions bool
}

// Page is limit/offset pagination input.
type Page struct {
	Limit  int
	Offset int
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload stores the payload, then records it as the next version of its chain.
	// A failed blob write leaves no metadata behind.
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// Download checks access and returns the document content.
	Download(ctx context.Context, id string, caller model.Caller, pin *string) (*DownloadResult, error)

	// Delete removes a document owned by caller (or any document for admins) and repairs its chain.
	Delete(ctx context.Context, id string, caller model.Caller) (*DeleteResult, error)

	// ListVersions returns the chain of the given document, highest version first.
	ListVersions(ctx context.Context, id string, caller model.Caller) ([]model.Document, error)

	// List returns the documents visible to caller using limit/offset and a total count.
	List(ctx context.Context, filter ListFilter, page Page, caller model.Caller) (*DocumentListResult, error)

	// Get returns a single document's metadata by its ID.
	Get(ctx context.Context, id string, caller model.Caller) (*model.Document, error)
}

// Retriever resolves blob content through whichever strategy works.
type Retriever interface {
	Fetch(ctx context.Context, path string) ([]byte, retrieval.Strategy, error)
}

// Scheduler runs best-effort side effects outside the request.
type Scheduler interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

// Deps are the collaborators of the document service.
type Deps struct {
	Store     storage.BlobStore
	Repo      repository.DocumentRepository
	Chain     *chain.Manager
	Retriever Retriever
	Access    *access.Evaluator
	Tasks     Scheduler
	Logger    zerolog.Logger
	// MaxUploadSize in bytes; zero disables the limit.
	MaxUploadSize int64
	Now           func() time.Time
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store     storage.BlobStore
	repo      repository.DocumentRepository
	chain     *chain.Manager
	retriever Retriever
	access    *access.Evaluator
	tasks     Scheduler
	log       zerolog.Logger
	maxUpload int64
	now       func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(d Deps) DocumentService {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &documentService{
		store:     d.Store,
		repo:      d.Repo,
		chain:     d.Chain,
		retriever: d.Retriever,
		access:    d.Access,
		tasks:     d.Tasks,
		log:       d.Logger,
		maxUpload: d.MaxUploadSize,
		now:       d.Now,
	}
}

func (s *documentService) validateUpload(in *UploadInput) error {
	if in.AccessLevel == "" {
		in.AccessLevel = model.AccessPrivate
	}
	if !in.AccessLevel.Valid() {
		return ErrInvalidAccessLevel
	}
	if in.AccessLevel == model.AccessProtected && len(in.PIN) < access.MinPINLength {
		return ErrPinTooShort
	}
	if in.OwnerID == "" {
		return ErrOwnerRequired
	}
	if model.BaseName(in.OriginalName) == "" {
		return ErrNameRequired
	}
	if len(in.Data) == 0 {
		return ErrEmptyUpload
	}
	if s.maxUpload > 0 && int64(len(in.Data)) > s.maxUpload {
		return ErrFileTooLarge
	}
	return nil
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if err := s.validateUpload(&in); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	mimeType := model.DetectMimeType(in.OriginalName, in.MimeType, in.Data)

	var pinHash string
	if in.AccessLevel == model.AccessProtected {
		h, err := s.access.HashPIN(in.PIN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		pinHash = h
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(in.OriginalName))
	key := filepath.ToSlash(filepath.Join("documents", id+ext))
	log := s.log.With().Str("document_id", id).Str("blob_path", key).Logger()

	// Blob first: a failed write must never leave metadata pointing at nothing.
	obj, err := s.store.Put(ctx, key, bytes.NewReader(in.Data), storage.PutObjectOptions{
		Size:        int64(len(in.Data)),
		ContentType: mimeType,
		Metadata: map[string]string{
			"original-filename": in.OriginalName,
			"owner-id":          in.OwnerID,
			"sha256":            hex.EncodeToString(sum[:]),
		},
	})
	if err != nil {
		s.logStorageFailure(log, err, "blob upload failed")
		return nil, fmt.Errorf("%w: %s", ErrUploadStorage, storage.KindOf(err))
	}

	now := s.now().UTC()
	doc := &model.Document{
		ID:           id,
		BaseFileName: model.BaseName(in.OriginalName),
		UploadedBy:   in.OwnerID,
		OriginalName: filepath.Base(filepath.ToSlash(in.OriginalName)),
		MimeType:     mimeType,
		Size:         int64(len(in.Data)),
		FileHash:     hex.EncodeToString(sum[:]),
		BlobPath:     key,
		BlobID:       obj.ID,
		AccessLevel:  in.AccessLevel,
		AccessPin:    pinHash,
		Category:     model.Classify(mimeType),
		Description:  in.Description,
		Tags:         normalizeTags(in.Tags),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	stored, err := s.chain.Append(ctx, doc)
	if err != nil {
		s.rollbackBlob(ctx, log, key)
		if errors.Is(err, chain.ErrConflict) {
			return nil, ErrChainConflict
		}
		return nil, fmt.Errorf("save metadata: %w", err)
	}

	log.Info().
		Str("owner_id", stored.UploadedBy).
		Str("base_file_name", stored.BaseFileName).
		Int("version", stored.Version).
		Int64("size", stored.Size).
		Msg("document uploaded")
	return stored, nil
}

// rollbackBlob removes the blob of an upload whose metadata could not be saved.
// If that fails too, the orphan is logged and left in place.
func (s *documentService) rollbackBlob(ctx context.Context, log zerolog.Logger, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil && !storage.IsNotFound(err) {
		log.Error().Err(err).Msg("metadata save failed and blob rollback failed, blob orphaned")
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (s *documentService) lookup(ctx context.Context, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, id string, caller model.Caller, pin *string) (*DownloadResult, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := s.access.Evaluate(doc, caller, pin); !d.Granted {
		return nil, denied(d.Reason)
	}

	log := s.log.With().Str("document_id", doc.ID).Str("blob_path", doc.BlobPath).Logger()
	data, strategy, err := s.retriever.Fetch(ctx, doc.BlobPath)
	if err != nil {
		s.logStorageFailure(log, err, "blob retrieval failed")
		return nil, classifyStorage(err)
	}
	if len(data) == 0 {
		log.Error().Str("strategy", string(strategy)).Msg("blob retrieval returned no bytes")
		return nil, ErrEmptyPayload
	}
	if int64(len(data)) != doc.Size {
		log.Warn().
			Int64("recorded_size", doc.Size).
			Int("actual_size", len(data)).
			Msg("integrity warning: downloaded size differs from recorded size")
	}

	s.tasks.Go(ctx, "increment_download_count", func(taskCtx context.Context) error {
		return s.repo.IncrementDownloadCount(taskCtx, doc.ID)
	})

	log.Debug().Str("strategy", string(strategy)).Int("size", len(data)).Msg("document downloaded")
	return &DownloadResult{
		Data:     data,
		MimeType: doc.MimeType,
		Filename: doc.OriginalName,
		Size:     int64(len(data)),
		Strategy: strategy,
	}, nil
}

func (s *documentService) Delete(ctx context.Context, id string, caller model.Caller) (*DeleteResult, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := s.access.CanManage(doc, caller); !d.Granted {
		return nil, denied(d.Reason)
	}

	log := s.log.With().Str("document_id", doc.ID).Str("blob_path", doc.BlobPath).Logger()
	res := &DeleteResult{BlobRemoved: true}
	if err := s.store.Delete(ctx, doc.BlobPath); err != nil && !storage.IsNotFound(err) {
		// Metadata cleanup continues; the blob is left for manual removal.
		res.BlobRemoved = false
		s.logStorageFailure(log, err, "blob delete failed, removing metadata anyway")
	}

	if err := s.chain.Detach(ctx, doc); err != nil {
		return nil, fmt.Errorf("detach from chain: %w", err)
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("delete metadata: %w", err)
	}

	log.Info().Str("caller_id", caller.ID).Int("version", doc.Version).Bool("blob_removed", res.BlobRemoved).Msg("document deleted")
	return res, nil
}

func (s *documentService) ListVersions(ctx context.Context, id string, caller model.Caller) ([]model.Document, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := s.access.CanView(doc, caller); !d.Granted {
		return nil, denied(d.Reason)
	}
	members, err := s.chain.Versions(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	visible := make([]model.Document, 0, len(members))
	for i := range members {
		if s.access.CanView(&members[i], caller).Granted {
			visible = append(visible, members[i])
		}
	}
	return visible, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, filter ListFilter, page Page, caller model.Caller) (*DocumentListResult, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, ErrInvalidCategory
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	res, err := s.repo.List(ctx, repository.ListQuery{
		PageQuery:     repository.PageQuery{Limit: page.Limit, Offset: page.Offset},
		ViewerID:      caller.ID,
		ViewerIsAdmin: caller.IsAdmin(),
		Category:      filter.Category,
		Search:        filter.Search,
		AllVersions:   filter.AllVersions,
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string, caller model.Caller) (*model.Document, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := s.access.CanView(doc, caller); !d.Granted {
		return nil, denied(d.Reason)
	}
	return doc, nil
}

// logStorageFailure logs credential problems at error level since they need an operator.
func (s *documentService) logStorageFailure(log zerolog.Logger, err error, msg string) {
	ev := log.Warn()
	if storage.KindOf(err) == storage.KindUnauthorized || errors.Is(err, retrieval.ErrConnectivity) {
		ev = log.Error()
	}
	ev.Err(err).Str("kind", string(storage.KindOf(err))).Msg(msg)
}
