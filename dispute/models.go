package dispute

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the dispute lifecycle state. Transitions are one-way:
// Pending -> InProgress -> Resolved, with Cancelled reachable from any
// non-terminal state.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusResolved   Status = "Resolved"
	StatusCancelled  Status = "Cancelled"
)

// Vote is a juror's recorded side.
type Vote string

const (
	VoteBuyer  Vote = "Buyer"
	VoteSeller Vote = "Seller"
)

// State machine errors.
var (
	ErrBadStatus     = errors.New("dispute: invalid status for operation")
	ErrNoJurors      = errors.New("dispute: juror list is empty")
	ErrNotJuror      = errors.New("dispute: voter is not an assigned juror")
	ErrAlreadyVoted  = errors.New("dispute: juror already voted")
	ErrInvalidVote   = errors.New("dispute: vote must be Buyer or Seller")
	ErrJurorConflict = errors.New("dispute: juror cannot be a party to the dispute")
)

// Juror is one assigned arbitrator and their vote state.
type Juror struct {
	Address  string          `json:"address"`
	Stake    decimal.Decimal `json:"stake"`
	HasVoted bool            `json:"has_voted"`
	Vote     Vote            `json:"vote,omitempty"`
}

// EvidenceFile references one submitted evidence artifact by hash.
type EvidenceFile struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// Tally is the running vote count.
type Tally struct {
	BuyerVotes  int
	SellerVotes int
	TotalStake  decimal.Decimal
}

// Resolution is the terminal outcome of a resolved dispute.
type Resolution struct {
	Winner     string
	Reason     string
	ResolvedAt time.Time
}

// Dispute is the full arbitration state for one escrow. All transitions
// go through methods on this type so invariants hold independent of
// storage.
type Dispute struct {
	DisputeID   int64
	EscrowID    int64
	Buyer       string
	Seller      string
	Evidence    string
	Description string
	Files       []EvidenceFile
	Jurors      []Juror
	Votes       Tally
	Status      Status
	Resolution  *Resolution
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeAddress lowercases an address so comparisons are
// case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Assignment pairs a juror address with the stake they commit.
type Assignment struct {
	Address string
	Stake   decimal.Decimal
}

// AssignJurors moves a pending dispute into voting. The panel must be
// non-empty and may not include either party.
func (d *Dispute) AssignJurors(assignments []Assignment, now time.Time) error {
	if d.Status != StatusPending {
		return ErrBadStatus
	}
	if len(assignments) == 0 {
		return ErrNoJurors
	}

	jurors := make([]Juror, 0, len(assignments))
	total := decimal.Zero
	seen := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		addr := NormalizeAddress(a.Address)
		if addr == "" || seen[addr] {
			continue
		}
		if addr == d.Buyer || addr == d.Seller {
			return ErrJurorConflict
		}
		seen[addr] = true
		jurors = append(jurors, Juror{Address: addr, Stake: a.Stake})
		total = total.Add(a.Stake)
	}
	if len(jurors) == 0 {
		return ErrNoJurors
	}

	d.Jurors = jurors
	d.Votes.TotalStake = total
	d.Status = StatusInProgress
	d.UpdatedAt = now
	return nil
}

// CastVote records one juror's vote. Each juror votes exactly once.
func (d *Dispute) CastVote(address string, vote Vote, now time.Time) error {
	if d.Status != StatusInProgress {
		return ErrBadStatus
	}
	if vote != VoteBuyer && vote != VoteSeller {
		return ErrInvalidVote
	}

	address = NormalizeAddress(address)
	for i := range d.Jurors {
		if d.Jurors[i].Address != address {
			continue
		}
		if d.Jurors[i].HasVoted {
			return ErrAlreadyVoted
		}
		d.Jurors[i].HasVoted = true
		d.Jurors[i].Vote = vote
		if vote == VoteBuyer {
			d.Votes.BuyerVotes++
		} else {
			d.Votes.SellerVotes++
		}
		d.UpdatedAt = now
		return nil
	}
	return ErrNotJuror
}

// AllVoted reports whether every assigned juror has voted.
func (d *Dispute) AllVoted() bool {
	if len(d.Jurors) == 0 {
		return false
	}
	for _, j := range d.Jurors {
		if !j.HasVoted {
			return false
		}
	}
	return true
}

// Winner returns the prevailing party's address for the current tally.
// Ties go to the seller.
func (d *Dispute) Winner() string {
	if d.Votes.BuyerVotes > d.Votes.SellerVotes {
		return d.Buyer
	}
	return d.Seller
}

// Resolve finalizes an in-progress dispute from the current tally.
func (d *Dispute) Resolve(reason string, now time.Time) error {
	if d.Status != StatusInProgress {
		return ErrBadStatus
	}
	d.Status = StatusResolved
	d.Resolution = &Resolution{
		Winner:     d.Winner(),
		Reason:     reason,
		ResolvedAt: now,
	}
	d.UpdatedAt = now
	return nil
}

// Cancel abandons a dispute that has not resolved.
func (d *Dispute) Cancel(now time.Time) error {
	if d.Status != StatusPending && d.Status != StatusInProgress {
		return ErrBadStatus
	}
	d.Status = StatusCancelled
	d.UpdatedAt = now
	return nil
}

// AddEvidence appends evidence to a dispute still open for submissions.
func (d *Dispute) AddEvidence(description string, files []EvidenceFile, now time.Time) error {
	if d.Status != StatusPending && d.Status != StatusInProgress {
		return ErrBadStatus
	}
	if description != "" {
		if d.Description == "" {
			d.Description = description
		} else {
			d.Description += "\n" + description
		}
	}
	d.Files = append(d.Files, files...)
	d.UpdatedAt = now
	return nil
}

// MajorityVoters returns the jurors whose vote matches the winner's side.
// Only meaningful on a resolved dispute.
func (d *Dispute) MajorityVoters() []string {
	if d.Resolution == nil {
		return nil
	}
	winning := VoteSeller
	if d.Resolution.Winner == d.Buyer {
		winning = VoteBuyer
	}
	var out []string
	for _, j := range d.Jurors {
		if j.HasVoted && j.Vote == winning {
			out = append(out, j.Address)
		}
	}
	return out
}

// IsParty reports whether an address is the buyer or seller.
func (d *Dispute) IsParty(address string) bool {
	address = NormalizeAddress(address)
	return address == d.Buyer || address == d.Seller
}
