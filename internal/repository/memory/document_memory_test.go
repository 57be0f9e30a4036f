package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/model"
	"docvault/internal/repository"
)

func member(id string, version int, parent *string, at time.Time) *model.Document {
	return &model.Document{
		ID:             id,
		BaseFileName:   "report",
		UploadedBy:     "u1",
		OriginalName:   "report.pdf",
		Version:        version,
		ParentDocument: parent,
		AccessLevel:    model.AccessPublic,
		Category:       model.CategoryPDF,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func seedChain(t *testing.T, repo *DocumentMemory) {
	t.Helper()
	ctx := context.Background()
	root := "v1"
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.InsertLatest(ctx, member("v1", 1, nil, base))
	require.NoError(t, err)
	_, err = repo.InsertLatest(ctx, member("v2", 2, &root, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.InsertLatest(ctx, member("v3", 3, &root, base.Add(2*time.Hour)))
	require.NoError(t, err)
}

func TestInsertLatest_SingleLatest(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)

	chain, err := repo.FindChain(context.Background(), "u1", "report")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{chain[0].Version, chain[1].Version, chain[2].Version})
	assert.True(t, chain[0].IsLatestVersion)
	assert.False(t, chain[1].IsLatestVersion)
	assert.False(t, chain[2].IsLatestVersion)
}

func TestInsertLatest_DuplicateVersion(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)

	_, err := repo.InsertLatest(context.Background(), member("other", 3, nil, time.Now()))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	v3, err := repo.FindByID(context.Background(), "v3")
	require.NoError(t, err)
	assert.True(t, v3.IsLatestVersion, "failed insert must not demote the current latest")
}

func TestFindByID_ReturnsCopy(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)

	d, err := repo.FindByID(context.Background(), "v1")
	require.NoError(t, err)
	d.Version = 99

	again, err := repo.FindByID(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Version)

	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHistoryFanOut(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)
	ctx := context.Background()

	for _, id := range []string{"v1", "v2", "v3"} {
		d, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		require.NoError(t, repo.AppendHistory(ctx, "v1", d.HistoryEntry()))
	}
	// a replayed entry is not duplicated
	v2, _ := repo.FindByID(ctx, "v2")
	require.NoError(t, repo.AppendHistory(ctx, "v1", v2.HistoryEntry()))

	for _, id := range []string{"v1", "v2", "v3"} {
		d, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Len(t, d.VersionHistory, 3, id)
	}

	require.NoError(t, repo.PruneHistory(ctx, "v1", "v2"))
	v3, _ := repo.FindByID(ctx, "v3")
	require.Len(t, v3.VersionHistory, 2)
	assert.Equal(t, "v1", v3.VersionHistory[0].DocumentID)
	assert.Equal(t, "v3", v3.VersionHistory[1].DocumentID)
}

func TestTransferLatestAndReroot(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.TransferLatest(ctx, "v3", "v2"))
	v2, _ := repo.FindByID(ctx, "v2")
	v3, _ := repo.FindByID(ctx, "v3")
	assert.True(t, v2.IsLatestVersion)
	assert.False(t, v3.IsLatestVersion)
	assert.ErrorIs(t, repo.TransferLatest(ctx, "v2", "gone"), repository.ErrNotFound)

	require.NoError(t, repo.Reroot(ctx, "u1", "report", "v2"))
	v2, _ = repo.FindByID(ctx, "v2")
	v3, _ = repo.FindByID(ctx, "v3")
	assert.Nil(t, v2.ParentDocument)
	require.NotNil(t, v3.ParentDocument)
	assert.Equal(t, "v2", *v3.ParentDocument)
}

func TestList(t *testing.T) {
	repo := NewDocumentMemory()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := []*model.Document{
		{ID: "a", BaseFileName: "a", UploadedBy: "u1", OriginalName: "a.pdf", Version: 1, AccessLevel: model.AccessPrivate, Category: model.CategoryPDF, CreatedAt: at},
		{ID: "b", BaseFileName: "b", UploadedBy: "u1", OriginalName: "b.png", Version: 1, AccessLevel: model.AccessPublic, Category: model.CategoryImage, Tags: []string{"Holiday", "beach"}, CreatedAt: at.Add(time.Minute)},
		{ID: "c", BaseFileName: "c", UploadedBy: "u1", OriginalName: "c.pdf", Version: 1, AccessLevel: model.AccessProtected, Category: model.CategoryPDF, CreatedAt: at.Add(2 * time.Minute)},
		{ID: "d", BaseFileName: "d", UploadedBy: "u2", OriginalName: "d.pdf", Version: 1, AccessLevel: model.AccessPrivate, Category: model.CategoryPDF, CreatedAt: at.Add(3 * time.Minute)},
	}
	for _, d := range docs {
		_, err := repo.InsertLatest(ctx, d)
		require.NoError(t, err)
	}

	res, err := repo.List(ctx, repository.ListQuery{ViewerID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"d", "c", "b"}, ids(res.Items))

	res, err = repo.List(ctx, repository.ListQuery{ViewerIsAdmin: true, Category: model.CategoryPDF})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "a"}, ids(res.Items))

	res, err = repo.List(ctx, repository.ListQuery{ViewerID: "u2", Search: "holi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(res.Items))

	// tags match individually, never across the list boundary
	res, err = repo.List(ctx, repository.ListQuery{ViewerID: "u2", Search: `day", "bea`})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = repo.List(ctx, repository.ListQuery{ViewerIsAdmin: true, PageQuery: repository.PageQuery{Limit: 2, Offset: 1}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, []string{"c", "b"}, ids(res.Items))

	res, err = repo.List(ctx, repository.ListQuery{ViewerIsAdmin: true, PageQuery: repository.PageQuery{Limit: 2, Offset: 10}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func ids(docs []model.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestDeleteAndCounter(t *testing.T) {
	repo := NewDocumentMemory()
	seedChain(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.IncrementDownloadCount(ctx, "v1"))
	require.NoError(t, repo.IncrementDownloadCount(ctx, "v1"))
	v1, _ := repo.FindByID(ctx, "v1")
	assert.Equal(t, int64(2), v1.DownloadCount)

	require.NoError(t, repo.Delete(ctx, "v1"))
	require.NoError(t, repo.Delete(ctx, "v1"))
	_, err := repo.FindByID(ctx, "v1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.IncrementDownloadCount(ctx, "v1"), repository.ErrNotFound)
}
