package escrow

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the escrow lifecycle state.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusDisputed  Status = "Disputed"
	StatusCancelled Status = "Cancelled"
)

// State machine errors.
var (
	ErrNotActive = errors.New("escrow: not active")
	ErrNotParty  = errors.New("escrow: actor is not a party")
)

// Record is one escrow agreement between a buyer and a seller. Mutations
// go through methods so the completion invariant (Completed iff both
// parties confirmed) holds everywhere.
type Record struct {
	EscrowID            int64
	Buyer               string
	Seller              string
	Arbitrator          string
	Amount              decimal.Decimal
	TokenAddress        string
	TermsHash           string
	Status              Status
	BuyerConfirmed      bool
	SellerConfirmed     bool
	EvidenceHash        string
	EvidenceDescription string
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NormalizeAddress lowercases an address so comparisons are
// case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Confirm records a party's completion confirmation. Re-confirming is a
// no-op for the flag but still legal. Returns whether this confirmation
// completed the escrow.
func (r *Record) Confirm(actor string, now time.Time) (bool, error) {
	if r.Status != StatusActive {
		return false, ErrNotActive
	}
	switch NormalizeAddress(actor) {
	case r.Buyer:
		r.BuyerConfirmed = true
	case r.Seller:
		r.SellerConfirmed = true
	default:
		return false, ErrNotParty
	}
	r.UpdatedAt = now

	if r.BuyerConfirmed && r.SellerConfirmed {
		r.Status = StatusCompleted
		r.CompletedAt = &now
		return true, nil
	}
	return false, nil
}

// MarkDisputed moves an active escrow into the disputed state, capturing
// the initiating evidence.
func (r *Record) MarkDisputed(actor, evidenceHash, description string, now time.Time) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	if !r.IsParty(actor) {
		return ErrNotParty
	}
	r.Status = StatusDisputed
	r.EvidenceHash = evidenceHash
	r.EvidenceDescription = description
	r.UpdatedAt = now
	return nil
}

// Cancel abandons an active escrow.
func (r *Record) Cancel(now time.Time) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return nil
}

// IsParty reports whether an address is the buyer or seller.
func (r *Record) IsParty(address string) bool {
	address = NormalizeAddress(address)
	return address == r.Buyer || address == r.Seller
}
