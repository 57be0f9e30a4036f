package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docvault/internal/model"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(bcrypt.MinCost)
	require.NoError(t, err)
	return e
}

func strPtr(s string) *string { return &s }

var (
	owner    = model.Caller{ID: "owner", Role: model.RoleUser}
	stranger = model.Caller{ID: "stranger", Role: model.RoleUser}
	admin    = model.Caller{ID: "root", Role: model.RoleAdmin}
	anon     = model.Caller{}
)

func TestEvaluate_Public(t *testing.T) {
	e := newEvaluator(t)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessPublic}

	for _, c := range []model.Caller{owner, stranger, admin, anon} {
		assert.Equal(t, Decision{Granted: true}, e.Evaluate(doc, c, nil))
	}
}

func TestEvaluate_Private(t *testing.T) {
	e := newEvaluator(t)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessPrivate}

	assert.True(t, e.Evaluate(doc, owner, nil).Granted)
	assert.True(t, e.Evaluate(doc, admin, nil).Granted)
	assert.Equal(t, Decision{Reason: ReasonPrivateForbidden}, e.Evaluate(doc, stranger, nil))
	assert.Equal(t, Decision{Reason: ReasonPrivateForbidden}, e.Evaluate(doc, anon, strPtr("1234")))
}

func TestEvaluate_Protected(t *testing.T) {
	e := newEvaluator(t)
	hash, err := e.HashPIN("1234")
	require.NoError(t, err)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessProtected, AccessPin: hash}

	tests := []struct {
		name   string
		caller model.Caller
		pin    *string
		want   Decision
	}{
		{"correct pin stranger", stranger, strPtr("1234"), Decision{Granted: true}},
		{"correct pin anonymous", anon, strPtr("1234"), Decision{Granted: true}},
		{"wrong pin", stranger, strPtr("9999"), Decision{Reason: ReasonInvalidPin}},
		{"no pin", stranger, nil, Decision{Reason: ReasonPinRequired}},
		{"empty pin", stranger, strPtr(""), Decision{Reason: ReasonPinRequired}},
		{"owner still needs pin", owner, nil, Decision{Reason: ReasonPinRequired}},
		{"admin still needs pin", admin, nil, Decision{Reason: ReasonPinRequired}},
		{"owner wrong pin", owner, strPtr("0000"), Decision{Reason: ReasonInvalidPin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(doc, tt.caller, tt.pin))
		})
	}
}

func TestEvaluate_ProtectedWithoutStoredHash(t *testing.T) {
	e := newEvaluator(t)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessProtected}

	assert.Equal(t, Decision{Reason: ReasonInvalidPin}, e.Evaluate(doc, owner, strPtr("1234")))

	doc.AccessPin = "not-a-bcrypt-hash"
	assert.Equal(t, Decision{Reason: ReasonInvalidPin}, e.Evaluate(doc, owner, strPtr("1234")))
}

func TestEvaluate_Idempotent(t *testing.T) {
	e := newEvaluator(t)
	hash, err := e.HashPIN("4321")
	require.NoError(t, err)

	docs := []*model.Document{
		{UploadedBy: "owner", AccessLevel: model.AccessPublic},
		{UploadedBy: "owner", AccessLevel: model.AccessPrivate},
		{UploadedBy: "owner", AccessLevel: model.AccessProtected, AccessPin: hash},
	}
	pins := []*string{nil, strPtr("4321"), strPtr("1111")}
	for _, d := range docs {
		for _, c := range []model.Caller{owner, stranger, admin} {
			for _, p := range pins {
				assert.Equal(t, e.Evaluate(d, c, p), e.Evaluate(d, c, p))
			}
		}
	}
}

func TestEvaluate_UnknownLevelDenies(t *testing.T) {
	e := newEvaluator(t)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: "secret"}
	assert.False(t, e.Evaluate(doc, owner, nil).Granted)
}

func TestHashPIN(t *testing.T) {
	e := newEvaluator(t)

	_, err := e.HashPIN("123")
	assert.Error(t, err)

	a, err := e.HashPIN("1234")
	require.NoError(t, err)
	b, err := e.HashPIN("1234")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "hashes must be salted")
	assert.NotContains(t, a, "1234")
}

func TestCanManage(t *testing.T) {
	e := newEvaluator(t)
	doc := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessPublic}

	assert.True(t, e.CanManage(doc, owner).Granted)
	assert.True(t, e.CanManage(doc, admin).Granted)
	assert.Equal(t, Decision{Reason: ReasonNotOwner}, e.CanManage(doc, stranger))
}

func TestCanView(t *testing.T) {
	e := newEvaluator(t)
	private := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessPrivate}
	protected := &model.Document{UploadedBy: "owner", AccessLevel: model.AccessProtected}

	assert.True(t, e.CanView(private, owner).Granted)
	assert.True(t, e.CanView(private, admin).Granted)
	assert.False(t, e.CanView(private, stranger).Granted)
	assert.True(t, e.CanView(protected, stranger).Granted)
}

func TestNewEvaluator_InvalidCostFallsBack(t *testing.T) {
	e, err := NewEvaluator(99)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, e.cost)
}
