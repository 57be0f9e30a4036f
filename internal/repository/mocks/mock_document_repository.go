package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docvault/internal/model"
	"docvault/internal/repository"
)

type MockDocumentRepository struct {
	mock.Mock
}

var _ repository.DocumentRepository = (*MockDocumentRepository)(nil)

func (m *MockDocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindChain(ctx context.Context, ownerID, baseFileName string) ([]model.Document, error) {
	args := m.Called(ctx, ownerID, baseFileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentRepository) InsertLatest(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if fn, ok := args.Get(0).(func(context.Context, *model.Document) *model.Document); ok {
		return fn(ctx, doc), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) TransferLatest(ctx context.Context, fromID, toID string) error {
	return m.Called(ctx, fromID, toID).Error(0)
}

func (m *MockDocumentRepository) Reroot(ctx context.Context, ownerID, baseFileName, newRootID string) error {
	return m.Called(ctx, ownerID, baseFileName, newRootID).Error(0)
}

func (m *MockDocumentRepository) AppendHistory(ctx context.Context, rootID string, entry model.VersionEntry) error {
	return m.Called(ctx, rootID, entry).Error(0)
}

func (m *MockDocumentRepository) PruneHistory(ctx context.Context, rootID, documentID string) error {
	return m.Called(ctx, rootID, documentID).Error(0)
}

func (m *MockDocumentRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDocumentRepository) List(ctx context.Context, q repository.ListQuery) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Document]), args.Error(1)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
