// Package chain maintains version chains: the records sharing an owner and a
// base file name, numbered 1..N, all pointing at the version-1 root.
package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// ErrConflict is returned when concurrent writers kept claiming the next version
// of the same chain until the attempt budget ran out.
var ErrConflict = errors.New("version chain conflict")

const defaultMaxAttempts = 3

// Resolution is the position a new upload takes in its chain.
type Resolution struct {
	Version  int
	ParentID *string
}

type Options struct {
	MaxAttempts int
	Logger      zerolog.Logger
}

type Manager struct {
	repo        repository.DocumentRepository
	maxAttempts int
	log         zerolog.Logger
}

func NewManager(repo repository.DocumentRepository, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Manager{repo: repo, maxAttempts: opts.MaxAttempts, log: opts.Logger}
}

// Resolve computes the version and root reference for the next upload to a chain.
func (m *Manager) Resolve(ctx context.Context, ownerID, baseFileName string) (Resolution, error) {
	members, err := m.repo.FindChain(ctx, ownerID, baseFileName)
	if err != nil {
		return Resolution{}, fmt.Errorf("find chain: %w", err)
	}
	return resolve(members), nil
}

// members must be ordered by version descending.
func resolve(members []model.Document) Resolution {
	if len(members) == 0 {
		return Resolution{Version: 1}
	}
	top := members[0]
	root := top.RootID()
	return Resolution{Version: top.Version + 1, ParentID: &root}
}

// Append stores doc as the new latest member of its chain. Version, parent, latest
// flag and history are assigned here; any values on doc are overwritten. When a
// concurrent upload claims the same version first, the position is re-resolved
// and the insert retried.
func (m *Manager) Append(ctx context.Context, doc *model.Document) (*model.Document, error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		members, err := m.repo.FindChain(ctx, doc.UploadedBy, doc.BaseFileName)
		if err != nil {
			return nil, fmt.Errorf("find chain: %w", err)
		}
		res := resolve(members)

		candidate := *doc
		candidate.Version = res.Version
		candidate.ParentDocument = res.ParentID
		candidate.IsLatestVersion = true
		candidate.VersionHistory = append(ascending(members), candidate.HistoryEntry())

		stored, err := m.repo.InsertLatest(ctx, &candidate)
		if errors.Is(err, repository.ErrDuplicate) {
			m.log.Debug().
				Str("base_file_name", doc.BaseFileName).
				Int("version", res.Version).
				Int("attempt", attempt).
				Msg("chain version claimed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert version: %w", err)
		}

		m.fanOut(ctx, stored)
		return stored, nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, doc.BaseFileName, m.maxAttempts)
}

func (m *Manager) fanOut(ctx context.Context, doc *model.Document) {
	if doc.Version == 1 {
		return
	}
	if err := m.repo.AppendHistory(ctx, doc.RootID(), doc.HistoryEntry()); err != nil {
		m.log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("root_id", doc.RootID()).
			Msg("version history fan-out failed")
	}
}

// Detach prepares the chain for doc's removal: the latest flag moves to the highest
// remaining version, a deleted root hands over to the lowest remaining version,
// and doc's history entry is pruned from the survivors.
func (m *Manager) Detach(ctx context.Context, doc *model.Document) error {
	members, err := m.repo.FindChain(ctx, doc.UploadedBy, doc.BaseFileName)
	if err != nil {
		return fmt.Errorf("find chain: %w", err)
	}
	remaining := slices.DeleteFunc(members, func(d model.Document) bool { return d.ID == doc.ID })
	if len(remaining) == 0 {
		return nil
	}

	if doc.IsLatestVersion {
		next := remaining[0]
		if err := m.repo.TransferLatest(ctx, doc.ID, next.ID); err != nil {
			return fmt.Errorf("promote version %d to latest: %w", next.Version, err)
		}
	}

	rootID := doc.RootID()
	if doc.ParentDocument == nil {
		heir := remaining[len(remaining)-1]
		if err := m.repo.Reroot(ctx, doc.UploadedBy, doc.BaseFileName, heir.ID); err != nil {
			return fmt.Errorf("promote version %d to root: %w", heir.Version, err)
		}
		rootID = heir.ID
	}

	if err := m.repo.PruneHistory(ctx, rootID, doc.ID); err != nil {
		m.log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("root_id", rootID).
			Msg("version history prune failed")
	}
	return nil
}

// Versions returns the members of doc's chain by parent traversal, highest version first.
func (m *Manager) Versions(ctx context.Context, doc *model.Document) ([]model.Document, error) {
	members, err := m.repo.FindChain(ctx, doc.UploadedBy, doc.BaseFileName)
	if err != nil {
		return nil, fmt.Errorf("find chain: %w", err)
	}
	root := doc.RootID()
	return slices.DeleteFunc(members, func(d model.Document) bool { return d.RootID() != root }), nil
}

// History recomputes doc's version history from the chain itself rather than
// the denormalized copy, highest version first.
func (m *Manager) History(ctx context.Context, doc *model.Document) ([]model.VersionEntry, error) {
	members, err := m.Versions(ctx, doc)
	if err != nil {
		return nil, err
	}
	out := make([]model.VersionEntry, 0, len(members))
	for i := range members {
		out = append(out, members[i].HistoryEntry())
	}
	return out, nil
}

func ascending(members []model.Document) []model.VersionEntry {
	out := make([]model.VersionEntry, 0, len(members)+1)
	for i := len(members) - 1; i >= 0; i-- {
		out = append(out, members[i].HistoryEntry())
	}
	return out
}
