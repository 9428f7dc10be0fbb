package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/juror"
	"escrowflow/reputation"
	"escrowflow/timeline"
)

// escrowView is the JSON shape of an escrow record.
type escrowView struct {
	EscrowID            int64      `json:"escrow_id"`
	Buyer               string     `json:"buyer"`
	Seller              string     `json:"seller"`
	Arbitrator          string     `json:"arbitrator,omitempty"`
	Amount              string     `json:"amount"`
	TokenAddress        string     `json:"token_address,omitempty"`
	TermsHash           string     `json:"terms_hash"`
	Status              string     `json:"status"`
	BuyerConfirmed      bool       `json:"buyer_confirmed"`
	SellerConfirmed     bool       `json:"seller_confirmed"`
	EvidenceHash        string     `json:"evidence_hash,omitempty"`
	EvidenceDescription string     `json:"evidence_description,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func viewEscrow(r escrow.Record) escrowView {
	return escrowView{
		EscrowID:            r.EscrowID,
		Buyer:               r.Buyer,
		Seller:              r.Seller,
		Arbitrator:          r.Arbitrator,
		Amount:              r.Amount.String(),
		TokenAddress:        r.TokenAddress,
		TermsHash:           r.TermsHash,
		Status:              string(r.Status),
		BuyerConfirmed:      r.BuyerConfirmed,
		SellerConfirmed:     r.SellerConfirmed,
		EvidenceHash:        r.EvidenceHash,
		EvidenceDescription: r.EvidenceDescription,
		CompletedAt:         r.CompletedAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func viewEscrows(rs []escrow.Record) []escrowView {
	out := make([]escrowView, len(rs))
	for i, r := range rs {
		out[i] = viewEscrow(r)
	}
	return out
}

type jurorVoteView struct {
	Address  string `json:"address"`
	Stake    string `json:"stake"`
	HasVoted bool   `json:"has_voted"`
	Vote     string `json:"vote,omitempty"`
}

type resolutionView struct {
	Winner     string    `json:"winner"`
	Reason     string    `json:"reason"`
	ResolvedAt time.Time `json:"resolved_at"`
}

type disputeView struct {
	DisputeID   int64                  `json:"dispute_id"`
	EscrowID    int64                  `json:"escrow_id"`
	Buyer       string                 `json:"buyer"`
	Seller      string                 `json:"seller"`
	Evidence    string                 `json:"evidence_hash"`
	Description string                 `json:"description,omitempty"`
	Files       []dispute.EvidenceFile `json:"evidence_files"`
	Jurors      []jurorVoteView        `json:"jurors"`
	BuyerVotes  int                    `json:"buyer_votes"`
	SellerVotes int                    `json:"seller_votes"`
	TotalStake  string                 `json:"total_stake"`
	Status      string                 `json:"status"`
	Resolution  *resolutionView        `json:"resolution,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func viewDispute(d dispute.Dispute) disputeView {
	jurors := make([]jurorVoteView, len(d.Jurors))
	for i, j := range d.Jurors {
		jurors[i] = jurorVoteView{
			Address:  j.Address,
			Stake:    j.Stake.String(),
			HasVoted: j.HasVoted,
			Vote:     string(j.Vote),
		}
	}
	files := d.Files
	if files == nil {
		files = []dispute.EvidenceFile{}
	}
	v := disputeView{
		DisputeID:   d.DisputeID,
		EscrowID:    d.EscrowID,
		Buyer:       d.Buyer,
		Seller:      d.Seller,
		Evidence:    d.Evidence,
		Description: d.Description,
		Files:       files,
		Jurors:      jurors,
		BuyerVotes:  d.Votes.BuyerVotes,
		SellerVotes: d.Votes.SellerVotes,
		TotalStake:  d.Votes.TotalStake.String(),
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Resolution != nil {
		v.Resolution = &resolutionView{
			Winner:     d.Resolution.Winner,
			Reason:     d.Resolution.Reason,
			ResolvedAt: d.Resolution.ResolvedAt,
		}
	}
	return v
}

func viewDisputes(ds []dispute.Dispute) []disputeView {
	out := make([]disputeView, len(ds))
	for i, d := range ds {
		out[i] = viewDispute(d)
	}
	return out
}

type reputationView struct {
	User         string                          `json:"user"`
	Score        int64                           `json:"score"`
	Tier         string                          `json:"tier"`
	Transactions reputation.TransactionCounters  `json:"transactions"`
	Arbitrations reputation.ArbitrationCounters  `json:"arbitrations"`
	SuccessRate  float64                         `json:"success_rate"`
	WinRate      float64                         `json:"arbitration_win_rate"`
	Badges       []reputation.Badge              `json:"badges"`
	LastUpdated  time.Time                       `json:"last_updated"`
	Rank         int                             `json:"rank,omitempty"`
}

func viewReputation(r reputation.Record) reputationView {
	badges := r.Badges
	if badges == nil {
		badges = []reputation.Badge{}
	}
	return reputationView{
		User:         r.User,
		Score:        r.Score,
		Tier:         string(r.Tier),
		Transactions: r.Transactions,
		Arbitrations: r.Arbitrations,
		SuccessRate:  r.SuccessRate(),
		WinRate:      r.ArbitrationWinRate(),
		Badges:       badges,
		LastUpdated:  r.LastUpdated,
	}
}

func viewReputations(rs []reputation.Record) []reputationView {
	out := make([]reputationView, len(rs))
	for i, r := range rs {
		out[i] = viewReputation(r)
	}
	return out
}

func viewRanked(rs []reputation.RankedRecord) []reputationView {
	out := make([]reputationView, len(rs))
	for i, r := range rs {
		v := viewReputation(r.Record)
		v.Rank = r.Rank
		out[i] = v
	}
	return out
}

type jurorView struct {
	Address              string    `json:"address"`
	Stake                string    `json:"stake"`
	Reputation           int64     `json:"reputation"`
	IsActive             bool      `json:"is_active"`
	DisputesParticipated int       `json:"disputes_participated"`
	DisputesResolved     int       `json:"disputes_resolved"`
	Accuracy             float64   `json:"accuracy"`
	RegisteredAt         time.Time `json:"registered_at"`
}

func viewJuror(j juror.Juror) jurorView {
	return jurorView{
		Address:              j.Address,
		Stake:                j.Stake.String(),
		Reputation:           j.Reputation,
		IsActive:             j.IsActive,
		DisputesParticipated: j.DisputesParticipated,
		DisputesResolved:     j.DisputesResolved,
		Accuracy:             j.Accuracy,
		RegisteredAt:         j.RegisteredAt,
	}
}

func viewJurors(js []juror.Juror) []jurorView {
	out := make([]jurorView, len(js))
	for i, j := range js {
		out[i] = viewJuror(j)
	}
	return out
}

type timelineView struct {
	Seq       int       `json:"seq"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func viewTimeline(entries []timeline.Entry) []timelineView {
	out := make([]timelineView, len(entries))
	for i, e := range entries {
		out[i] = timelineView{
			Seq:       e.Seq,
			Action:    e.Action,
			Actor:     e.Actor,
			Details:   e.Details,
			Timestamp: e.Timestamp,
		}
	}
	return out
}

// idParam parses the numeric :id path parameter.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// pageParams parses limit/offset query parameters with defaults.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = 20
	offset = 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
