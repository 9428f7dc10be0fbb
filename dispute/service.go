package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escrowflow/logger"
	"escrowflow/metrics"
	"escrowflow/timeline"

	"go.uber.org/zap"
)

// Validation errors surfaced to callers.
var (
	ErrMissingParty    = errors.New("dispute: buyer and seller are required")
	ErrSameParty       = errors.New("dispute: buyer and seller must differ")
	ErrMissingEvidence = errors.New("dispute: evidence hash is required")
	ErrForbidden       = errors.New("dispute: actor is not a participant")
)

// TxBeginner opens transactions; *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, p CreateParams, now time.Time) (Dispute, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Dispute, error)
	Save(ctx context.Context, tx pgx.Tx, d Dispute) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, id int64, action, actor, details string) error
	Timeline(ctx context.Context, id int64) ([]timeline.Entry, error)
	GetByID(ctx context.Context, id int64) (Dispute, error)
	List(ctx context.Context, f Filters) ([]Dispute, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// ReputationRecorder applies arbitration outcomes to party reputations.
type ReputationRecorder interface {
	RecordArbitration(ctx context.Context, user string, won bool, relatedID string) error
}

// Registry tracks juror participation and resolution counts.
type Registry interface {
	MarkParticipation(ctx context.Context, addresses []string) error
	MarkResolution(ctx context.Context, addresses []string) error
}

// Service drives the dispute lifecycle. Mutations lock the dispute row,
// run the state machine, and commit; reputation and registry updates
// happen after commit and are best-effort.
type Service struct {
	pool       TxBeginner
	store      Store
	reputation ReputationRecorder
	registry   Registry
	now        func() time.Time
}

func NewService(pool TxBeginner, store Store, reputation ReputationRecorder, registry Registry) *Service {
	return &Service{
		pool:       pool,
		store:      store,
		reputation: reputation,
		registry:   registry,
		now:        time.Now,
	}
}

// Create opens a dispute directly against an escrow. Disputes opened from
// the escrow flow go through CreateInTx on the escrow's transaction
// instead.
func (s *Service) Create(ctx context.Context, p CreateParams) (Dispute, error) {
	p.Buyer = NormalizeAddress(p.Buyer)
	p.Seller = NormalizeAddress(p.Seller)
	if p.Buyer == "" || p.Seller == "" {
		return Dispute{}, ErrMissingParty
	}
	if p.Buyer == p.Seller {
		return Dispute{}, ErrSameParty
	}
	if p.Evidence == "" {
		return Dispute{}, ErrMissingEvidence
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.CreateInTx(ctx, tx, p, s.now().UTC())
	if err != nil {
		return Dispute{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit: %w", err)
	}

	metrics.DisputesOpened.Inc()
	logger.L().Info("dispute opened",
		zap.Int64("dispute_id", d.DisputeID),
		zap.Int64("escrow_id", d.EscrowID))
	return d, nil
}

// AddEvidence appends evidence from one of the parties.
func (s *Service) AddEvidence(ctx context.Context, id int64, actor, description string, files []EvidenceFile) (Dispute, error) {
	var out Dispute
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		actor = NormalizeAddress(actor)
		if !d.IsParty(actor) {
			return ErrForbidden
		}

		now := s.now().UTC()
		if err := d.AddEvidence(description, files, now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, d); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Evidence Submitted", actor,
			fmt.Sprintf("%d file(s) attached", len(files))); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// AssignJurors seats the panel and opens voting. Participation counters
// update after commit.
func (s *Service) AssignJurors(ctx context.Context, id int64, assignments []Assignment) (Dispute, error) {
	var out Dispute
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := d.AssignJurors(assignments, now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, d); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Jurors Assigned", timeline.ActorSystem,
			fmt.Sprintf("%d juror(s) seated, total stake %s", len(d.Jurors), d.Votes.TotalStake)); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return Dispute{}, err
	}

	addresses := make([]string, len(out.Jurors))
	for i, j := range out.Jurors {
		addresses[i] = j.Address
	}
	if err := s.registry.MarkParticipation(ctx, addresses); err != nil {
		metrics.ReputationUpdateFailures.Inc()
		logger.L().Warn("juror participation update failed",
			zap.Int64("dispute_id", out.DisputeID), zap.Error(err))
	}
	return out, nil
}

// CastVote records a juror's vote. When the final juror votes the dispute
// resolves in the same transaction, so resolution happens exactly once
// regardless of concurrent voters.
func (s *Service) CastVote(ctx context.Context, id int64, jurorAddr string, vote Vote) (Dispute, error) {
	var out Dispute
	var resolved bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := d.CastVote(jurorAddr, vote, now); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Vote Cast", NormalizeAddress(jurorAddr),
			fmt.Sprintf("tally %d-%d", d.Votes.BuyerVotes, d.Votes.SellerVotes)); err != nil {
			return err
		}

		resolved = d.AllVoted()
		if resolved {
			if err := d.Resolve("All jurors voted", now); err != nil {
				return err
			}
			if err := s.store.AppendTimeline(ctx, tx, id, "Dispute Resolved", timeline.ActorSystem,
				fmt.Sprintf("winner %s (%d-%d)", d.Resolution.Winner, d.Votes.BuyerVotes, d.Votes.SellerVotes)); err != nil {
				return err
			}
		}
		if err := s.store.Save(ctx, tx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return Dispute{}, err
	}

	metrics.VotesCast.Inc()
	if resolved {
		s.afterResolution(ctx, out)
	}
	return out, nil
}

// afterResolution applies reputation and registry side effects once the
// resolution has committed. Failures are logged and counted, never
// propagated; the dispute stays resolved.
func (s *Service) afterResolution(ctx context.Context, d Dispute) {
	winner := d.Resolution.Winner
	loser := d.Seller
	side := "seller"
	if winner == d.Seller {
		loser = d.Buyer
	} else {
		side = "buyer"
	}
	metrics.DisputesResolved.WithLabelValues(side).Inc()

	related := fmt.Sprintf("%d", d.DisputeID)
	if err := s.reputation.RecordArbitration(ctx, winner, true, related); err != nil {
		metrics.ReputationUpdateFailures.Inc()
		logger.L().Warn("winner reputation update failed",
			zap.Int64("dispute_id", d.DisputeID), zap.String("user", winner), zap.Error(err))
	}
	if err := s.reputation.RecordArbitration(ctx, loser, false, related); err != nil {
		metrics.ReputationUpdateFailures.Inc()
		logger.L().Warn("loser reputation update failed",
			zap.Int64("dispute_id", d.DisputeID), zap.String("user", loser), zap.Error(err))
	}
	if err := s.registry.MarkResolution(ctx, d.MajorityVoters()); err != nil {
		metrics.ReputationUpdateFailures.Inc()
		logger.L().Warn("juror resolution update failed",
			zap.Int64("dispute_id", d.DisputeID), zap.Error(err))
	}

	logger.L().Info("dispute resolved",
		zap.Int64("dispute_id", d.DisputeID),
		zap.String("winner", winner),
		zap.Int("buyer_votes", d.Votes.BuyerVotes),
		zap.Int("seller_votes", d.Votes.SellerVotes))
}

// Cancel abandons a dispute that has not resolved. Admin only; the
// handler enforces the role.
func (s *Service) Cancel(ctx context.Context, id int64, actor string) (Dispute, error) {
	var out Dispute
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := d.Cancel(now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, tx, d); err != nil {
			return err
		}
		if err := s.store.AppendTimeline(ctx, tx, id, "Dispute Cancelled", NormalizeAddress(actor), ""); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

// GetByID returns one dispute.
func (s *Service) GetByID(ctx context.Context, id int64) (Dispute, error) {
	return s.store.GetByID(ctx, id)
}

// Timeline returns a dispute's audit trail.
func (s *Service) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Timeline(ctx, id)
}

// List pages through disputes with optional filters.
func (s *Service) List(ctx context.Context, f Filters) ([]Dispute, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" {
		switch f.Status {
		case StatusPending, StatusInProgress, StatusResolved, StatusCancelled:
		default:
			return nil, 0, fmt.Errorf("dispute: unknown status %q", f.Status)
		}
	}
	return s.store.List(ctx, f)
}

// Stats summarizes disputes by status.
type Stats struct {
	Total      int
	Pending    int
	InProgress int
	Resolved   int
	Cancelled  int
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Pending:    counts[StatusPending],
		InProgress: counts[StatusInProgress],
		Resolved:   counts[StatusResolved],
		Cancelled:  counts[StatusCancelled],
	}
	st.Total = st.Pending + st.InProgress + st.Resolved + st.Cancelled
	return st, nil
}

// ParseVote converts a request string into a Vote.
func ParseVote(s string) (Vote, error) {
	switch Vote(s) {
	case VoteBuyer:
		return VoteBuyer, nil
	case VoteSeller:
		return VoteSeller, nil
	default:
		return "", ErrInvalidVote
	}
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispute: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit: %w", err)
	}
	return nil
}
