package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentMemory is an in-process repository.DocumentRepository. It enforces the
// same uniqueness rules as the Postgres schema so chain serialization behaves
// identically in tests and local runs.
type DocumentMemory struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
	now  func() time.Time
}

// NewDocumentMemory creates an empty repository.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{docs: make(map[string]*model.Document), now: time.Now}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func clone(d *model.Document) *model.Document {
	out := *d
	if d.ParentDocument != nil {
		p := *d.ParentDocument
		out.ParentDocument = &p
	}
	out.VersionHistory = append([]model.VersionEntry{}, d.VersionHistory...)
	out.Tags = append([]string{}, d.Tags...)
	return &out
}

func sameChain(d *model.Document, ownerID, base string) bool {
	return d.UploadedBy == ownerID && d.BaseFileName == base
}

func (m *DocumentMemory) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(d), nil
}

func (m *DocumentMemory) FindChain(ctx context.Context, ownerID, baseFileName string) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Document, 0)
	for _, d := range m.docs {
		if sameChain(d, ownerID, baseFileName) {
			out = append(out, *clone(d))
		}
	}
	slices.SortFunc(out, func(a, b model.Document) int { return cmp.Compare(b.Version, a.Version) })
	return out, nil
}

func (m *DocumentMemory) InsertLatest(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return nil, fmt.Errorf("%w: documents_pkey", repository.ErrDuplicate)
	}
	for _, d := range m.docs {
		if sameChain(d, doc.UploadedBy, doc.BaseFileName) && d.Version == doc.Version {
			return nil, fmt.Errorf("%w: documents_chain_version_key", repository.ErrDuplicate)
		}
	}
	for _, d := range m.docs {
		if sameChain(d, doc.UploadedBy, doc.BaseFileName) && d.IsLatestVersion {
			d.IsLatestVersion = false
			d.UpdatedAt = doc.CreatedAt
		}
	}
	stored := clone(doc)
	stored.IsLatestVersion = true
	m.docs[stored.ID] = stored
	return clone(stored), nil
}

func (m *DocumentMemory) TransferLatest(ctx context.Context, fromID, toID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.docs[toID]
	if !ok {
		return repository.ErrNotFound
	}
	if from, ok := m.docs[fromID]; ok {
		from.IsLatestVersion = false
		from.UpdatedAt = m.now()
	}
	to.IsLatestVersion = true
	to.UpdatedAt = m.now()
	return nil
}

func (m *DocumentMemory) Reroot(ctx context.Context, ownerID, baseFileName, newRootID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.docs[newRootID]
	if !ok {
		return repository.ErrNotFound
	}
	now := m.now()
	root.ParentDocument = nil
	root.UpdatedAt = now
	for id, d := range m.docs {
		if id != newRootID && sameChain(d, ownerID, baseFileName) {
			p := newRootID
			d.ParentDocument = &p
			d.UpdatedAt = now
		}
	}
	return nil
}

func inFamily(d *model.Document, rootID string) bool {
	return d.ID == rootID || (d.ParentDocument != nil && *d.ParentDocument == rootID)
}

func (m *DocumentMemory) AppendHistory(ctx context.Context, rootID string, entry model.VersionEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, d := range m.docs {
		if !inFamily(d, rootID) {
			continue
		}
		if slices.ContainsFunc(d.VersionHistory, func(e model.VersionEntry) bool { return e.DocumentID == entry.DocumentID }) {
			continue
		}
		d.VersionHistory = append(d.VersionHistory, entry)
		d.UpdatedAt = now
	}
	return nil
}

func (m *DocumentMemory) PruneHistory(ctx context.Context, rootID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, d := range m.docs {
		if !inFamily(d, rootID) {
			continue
		}
		d.VersionHistory = slices.DeleteFunc(d.VersionHistory, func(e model.VersionEntry) bool { return e.DocumentID == documentID })
		d.UpdatedAt = now
	}
	return nil
}

func (m *DocumentMemory) IncrementDownloadCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.DownloadCount++
	return nil
}

func (m *DocumentMemory) List(ctx context.Context, q repository.ListQuery) (*repository.PageResult[model.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]model.Document, 0)
	for _, d := range m.docs {
		if matches(d, q) {
			matched = append(matched, *clone(d))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b model.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return &repository.PageResult[model.Document]{
		Items: matched[start:end],
		Total: total,
	}, nil
}

func matches(d *model.Document, q repository.ListQuery) bool {
	if !q.ViewerIsAdmin && d.UploadedBy != q.ViewerID && d.AccessLevel == model.AccessPrivate {
		return false
	}
	if !q.AllVersions && !d.IsLatestVersion {
		return false
	}
	if q.Category != "" && d.Category != q.Category {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(q.Search))
	if s == "" {
		return true
	}
	fields := append([]string{d.OriginalName, d.Description, d.BaseFileName}, d.Tags...)
	return slices.ContainsFunc(fields, func(f string) bool { return strings.Contains(strings.ToLower(f), s) })
}

func (m *DocumentMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}
