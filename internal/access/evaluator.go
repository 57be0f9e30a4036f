package access

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"docvault/internal/model"
)

// Reason explains a denial precisely enough for the caller to react (e.g. prompt for a PIN).
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonPrivateForbidden Reason = "private-forbidden"
	ReasonPinRequired      Reason = "pin-required"
	ReasonInvalidPin       Reason = "invalid-pin"
	ReasonNotOwner         Reason = "not-owner"
)

// MinPINLength is the shortest PIN accepted for protected documents.
const MinPINLength = 4

// Decision is the outcome of an access evaluation.
type Decision struct {
	Granted bool
	Reason  Reason
}

func grant() Decision             { return Decision{Granted: true} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Evaluator decides read and manage access. It holds no per-request state,
// so identical inputs always yield identical decisions.
type Evaluator struct {
	cost  int
	dummy []byte
}

// NewEvaluator builds an evaluator hashing PINs at the given bcrypt cost.
// Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewEvaluator(cost int) (*Evaluator, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Compared against when a record has no stored hash so both paths cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte("docvault-unset-pin"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate placeholder pin hash: %w", err)
	}
	return &Evaluator{cost: cost, dummy: dummy}, nil
}

// HashPIN returns the salted one-way hash stored for a protected document.
func (e *Evaluator) HashPIN(pin string) (string, error) {
	if len(pin) < MinPINLength {
		return "", fmt.Errorf("pin must be at least %d characters", MinPINLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), e.cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(h), nil
}

// Evaluate decides whether caller may read doc's content.
//
//	public    -> grant
//	private   -> grant for owner or admin, else private-forbidden
//	protected -> pin-required without a PIN, otherwise grant iff the PIN matches
//
// Ownership and admin role do not bypass the PIN on protected documents.
func (e *Evaluator) Evaluate(doc *model.Document, caller model.Caller, pin *string) Decision {
	switch doc.AccessLevel {
	case model.AccessPublic:
		return grant()
	case model.AccessPrivate:
		if caller.IsAdmin() || caller.Owns(doc) {
			return grant()
		}
		return deny(ReasonPrivateForbidden)
	case model.AccessProtected:
		if pin == nil || *pin == "" {
			return deny(ReasonPinRequired)
		}
		if e.comparePIN(doc.AccessPin, *pin) {
			return grant()
		}
		return deny(ReasonInvalidPin)
	}
	return deny(ReasonPrivateForbidden)
}

// CanManage reports whether caller may delete or otherwise administer doc.
func (e *Evaluator) CanManage(doc *model.Document, caller model.Caller) Decision {
	if caller.IsAdmin() || caller.Owns(doc) {
		return grant()
	}
	return deny(ReasonNotOwner)
}

// CanView reports whether doc's metadata is visible to caller in listings.
// Protected documents are listed for everyone; their content still needs the PIN.
func (e *Evaluator) CanView(doc *model.Document, caller model.Caller) Decision {
	if doc.AccessLevel == model.AccessPrivate && !caller.IsAdmin() && !caller.Owns(doc) {
		return deny(ReasonPrivateForbidden)
	}
	return grant()
}

func (e *Evaluator) comparePIN(stored, supplied string) bool {
	hash := []byte(stored)
	if len(hash) == 0 {
		_ = bcrypt.CompareHashAndPassword(e.dummy, []byte(supplied))
		return false
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(supplied))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// Malformed stored hash: burn the same work as a real comparison.
		_ = bcrypt.CompareHashAndPassword(e.dummy, []byte(supplied))
	}
	return err == nil
}
