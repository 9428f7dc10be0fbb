// Package actors drives concurrent escrow and dispute workloads against
// the real services for stress tests.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/juror"
)

// Trader runs full escrow lifecycles: create, then either complete by
// double confirmation or raise a dispute.
type Trader struct {
	Escrows     *escrow.Service
	Disputes    *dispute.Service
	Jurors      *juror.Service
	PanelSize   int
	DisputeRate float64 // 0..1 share of escrows that go to arbitration
	Rand        *rand.Rand

	Completed int
	Disputed  int
}

// RunOnce executes a single lifecycle with fresh parties.
func (t *Trader) RunOnce(ctx context.Context) error {
	buyer := "0xb" + uuid.NewString()
	seller := "0xs" + uuid.NewString()

	rec, err := t.Escrows.Create(ctx, escrow.CreateParams{
		Buyer:     buyer,
		Seller:    seller,
		Amount:    decimal.NewFromInt(int64(t.Rand.Intn(10000) + 1)),
		TermsHash: "0x" + uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("trader: create: %w", err)
	}

	if t.Rand.Float64() >= t.DisputeRate {
		if _, err := t.Escrows.Confirm(ctx, rec.EscrowID, buyer); err != nil {
			return fmt.Errorf("trader: buyer confirm: %w", err)
		}
		if _, err := t.Escrows.Confirm(ctx, rec.EscrowID, seller); err != nil {
			return fmt.Errorf("trader: seller confirm: %w", err)
		}
		t.Completed++
		return nil
	}

	_, d, err := t.Escrows.OpenDispute(ctx, rec.EscrowID, buyer, "0x"+uuid.NewString(), "stress dispute")
	if err != nil {
		return fmt.Errorf("trader: open dispute: %w", err)
	}
	if err := t.arbitrate(ctx, d.DisputeID); err != nil {
		return err
	}
	t.Disputed++
	return nil
}

// arbitrate seats a fresh panel and votes the dispute to resolution.
func (t *Trader) arbitrate(ctx context.Context, disputeID int64) error {
	size := t.PanelSize
	if size <= 0 {
		size = 3
	}

	assignments := make([]dispute.Assignment, size)
	for i := range assignments {
		addr := "0xj" + uuid.NewString()
		stake := decimal.NewFromInt(int64(1000 + t.Rand.Intn(5000)))
		if _, err := t.Jurors.Register(ctx, addr, stake); err != nil {
			return fmt.Errorf("trader: register juror: %w", err)
		}
		assignments[i] = dispute.Assignment{Address: addr, Stake: stake}
	}

	if _, err := t.Disputes.AssignJurors(ctx, disputeID, assignments); err != nil {
		return fmt.Errorf("trader: assign jurors: %w", err)
	}

	for _, a := range assignments {
		vote := dispute.VoteSeller
		if t.Rand.Intn(2) == 0 {
			vote = dispute.VoteBuyer
		}
		if _, err := t.Disputes.CastVote(ctx, disputeID, a.Address, vote); err != nil {
			return fmt.Errorf("trader: vote: %w", err)
		}
	}
	return nil
}

// RivalConfirmer hammers one escrow with concurrent confirmations from
// both parties; used to verify completion fires exactly once.
type RivalConfirmer struct {
	Escrows *escrow.Service
}

// Confirm issues one confirmation, tolerating the races that are legal
// outcomes (the escrow completed under a concurrent caller).
func (r *RivalConfirmer) Confirm(ctx context.Context, escrowID int64, actor string) error {
	_, err := r.Escrows.Confirm(ctx, escrowID, actor)
	if errors.Is(err, escrow.ErrNotActive) {
		return nil
	}
	return err
}

// RivalVoter races duplicate votes from one juror; exactly one may land.
type RivalVoter struct {
	Disputes *dispute.Service
}

// Vote casts a vote, tolerating the duplicate and post-resolution
// rejections that concurrent rivals legally produce.
func (r *RivalVoter) Vote(ctx context.Context, disputeID int64, jurorAddr string, v dispute.Vote) error {
	_, err := r.Disputes.CastVote(ctx, disputeID, jurorAddr, v)
	if errors.Is(err, dispute.ErrAlreadyVoted) || errors.Is(err, dispute.ErrBadStatus) {
		return nil
	}
	return err
}
