package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"escrowflow/dispute"
	"escrowflow/logger"
	"escrowflow/metrics"
	"escrowflow/timeline"

	"go.uber.org/zap"
)

// Validation errors surfaced to callers.
var (
	ErrMissingParty    = errors.New("escrow: buyer and seller are required")
	ErrSameParty       = errors.New("escrow: buyer and seller must differ")
	ErrBadAmount       = errors.New("escrow: amount must be positive")
	ErrMissingTerms    = errors.New("escrow: terms hash is required")
	ErrMissingEvidence = errors.New("escrow: evidence hash is required")
)

// TxBeginner opens transactions; *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Record, error)
	Save(ctx context.Context, tx pgx.Tx, rec Record) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, id int64, action, actor, details string) error
	Timeline(ctx context.Context, id int64) ([]timeline.Entry, error)
	GetByID(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context, f Filters) ([]Record, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// ReputationRecorder applies transaction outcomes to party reputations.
type ReputationRecorder interface {
	RecordTransaction(ctx context.Context, user string, success bool, relatedID string) error
}

// DisputeCreator opens a dispute inside the escrow's transaction.
type DisputeCreator interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, p dispute.CreateParams, now time.Time) (dispute.Dispute, error)
}

// Service drives the escrow lifecycle. Completion fires exactly once per
// escrow: the row lock serializes confirmations and only the transition
// to Completed triggers reputation updates.
type Service struct {
	pool       TxBeginner
	store      Store
	reputation ReputationRecorder
	disputes   DisputeCreator
	now        func() time.Time
}

func NewService(pool TxBeginner, store Store, reputation ReputationRecorder, disputes DisputeCreator) *Service {
	return &Service{
		pool:       pool,
		store:      store,
		reputation: reputation,
		disputes:   disputes,
		now:        time.Now,
	}
}

// CreateParams is the input for opening an escrow.
type CreateParams struct {
	Buyer        string
	Seller       string
	Arbitrator   string
	Amount       decimal.Decimal
	TokenAddress string
	TermsHash    string
}

// Create opens a new active escrow.
func (s *Service) Create(ctx context.Context, p CreateParams) (Record, error) {
	buyer := NormalizeAddress(p.Buyer)
	seller := NormalizeAddress(p.Seller)
	if buyer == "" || seller == "" {
		return Record{}, ErrMissingParty
	}
	if buyer == seller {
		return Record{}, ErrSameParty
	}
	if !p.Amount.IsPositive() {
		return Record{}, ErrBadAmount
	}
	if p.TermsHash == "" {
		return Record{}, ErrMissingTerms
	}

	now := s.now().UTC()
	rec := Record{
		Buyer:        buyer,
		Seller:       seller,
		Arbitrator:   NormalizeAddress(p.Arbitrator),
		Amount:       p.Amount,
		TokenAddress: NormalizeAddress(p.TokenAddress),
		TermsHash:    p.TermsHash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = s.store.Insert(ctx, tx, rec)
		return err
	})
	if err != nil {
		return Record{}, err
	}

	metrics.EscrowsCreated.Inc()
	logger.L().Info("escrow created",
		zap.Int64("escrow_id", rec.EscrowID),
		zap.String("buyer", rec.Buyer),
		zap.String("seller", rec.Seller))
	return rec, nil
}

// Confirm records a party's completion confirmation. When the second
// party confirms, the escrow completes in the same transaction and both
// parties' reputations are updated after commit.
func (s *Service) Confirm(ctx context.Context, id int64, actor string) (Record, error) {
	var out Record
	var completed bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		completed, err = rec.Confirm(actor, now)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Completion Confirmed", NormalizeAddress(actor), ""); err != nil {
			return err
		}
		if completed {
			if err := s.store.AppendTimeline(ctx, tx, id, "Escrow Completed", timeline.ActorSystem,
				"both parties confirmed"); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	if completed {
		metrics.EscrowsCompleted.Inc()
		s.recordOutcome(ctx, out, true)
		logger.L().Info("escrow completed", zap.Int64("escrow_id", out.EscrowID))
	}
	return out, nil
}

// OpenDispute moves an active escrow into arbitration and creates the
// dispute in the same transaction, so the escrow cannot end up disputed
// without a dispute record or vice versa.
func (s *Service) OpenDispute(ctx context.Context, id int64, actor, evidenceHash, description string) (Record, dispute.Dispute, error) {
	if evidenceHash == "" {
		return Record{}, dispute.Dispute{}, ErrMissingEvidence
	}

	var rec Record
	var d dispute.Dispute
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := rec.MarkDisputed(actor, evidenceHash, description, now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Dispute Opened", NormalizeAddress(actor), ""); err != nil {
			return err
		}

		d, err = s.disputes.CreateInTx(ctx, tx, dispute.CreateParams{
			EscrowID:    rec.EscrowID,
			Buyer:       rec.Buyer,
			Seller:      rec.Seller,
			Evidence:    evidenceHash,
			Description: description,
			OpenedBy:    actor,
		}, now)
		return err
	})
	if err != nil {
		return Record{}, dispute.Dispute{}, err
	}

	metrics.DisputesOpened.Inc()
	logger.L().Info("escrow disputed",
		zap.Int64("escrow_id", rec.EscrowID),
		zap.Int64("dispute_id", d.DisputeID))
	return rec, d, nil
}

// Cancel abandons an active escrow and records the failed transaction for
// both parties. Admin only; the handler enforces the role.
func (s *Service) Cancel(ctx context.Context, id int64, actor string) (Record, error) {
	var out Record
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := rec.Cancel(now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Escrow Cancelled", NormalizeAddress(actor), ""); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	s.recordOutcome(ctx, out, false)
	return out, nil
}

// recordOutcome applies the transaction result to both parties after
// commit. Failures are logged and counted, never propagated.
func (s *Service) recordOutcome(ctx context.Context, rec Record, success bool) {
	related := fmt.Sprintf("%d", rec.EscrowID)
	for _, party := range []string{rec.Buyer, rec.Seller} {
		if err := s.reputation.RecordTransaction(ctx, party, success, related); err != nil {
			metrics.ReputationUpdateFailures.Inc()
			logger.L().Warn("reputation update failed",
				zap.Int64("escrow_id", rec.EscrowID),
				zap.String("user", party),
				zap.Error(err))
		}
	}
}

// GetByID returns one escrow.
func (s *Service) GetByID(ctx context.Context, id int64) (Record, error) {
	return s.store.GetByID(ctx, id)
}

// Timeline returns an escrow's audit trail.
func (s *Service) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Timeline(ctx, id)
}

// List pages through escrows with optional filters.
func (s *Service) List(ctx context.Context, f Filters) ([]Record, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" {
		switch f.Status {
		case StatusActive, StatusCompleted, StatusDisputed, StatusCancelled:
		default:
			return nil, 0, fmt.Errorf("escrow: unknown status %q", f.Status)
		}
	}
	return s.store.List(ctx, f)
}

// Stats summarizes escrows by status.
type Stats struct {
	Total     int
	Active    int
	Completed int
	Disputed  int
	Cancelled int
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Active:    counts[StatusActive],
		Completed: counts[StatusCompleted],
		Disputed:  counts[StatusDisputed],
		Cancelled: counts[StatusCancelled],
	}
	st.Total = st.Active + st.Completed + st.Disputed + st.Cancelled
	return st, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("escrow: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow: commit: %w", err)
	}
	return nil
}
