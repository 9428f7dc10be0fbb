package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"escrowflow/dispute"
)

type createDisputeRequest struct {
	EscrowID    int64  `json:"escrow_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Evidence    string `json:"evidence_hash"`
	Description string `json:"description"`
}

func (s *Server) handleDisputeCreate(c *gin.Context) {
	var req createDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	claims := claimsFrom(c)
	d, err := s.disputes.Create(c.Request.Context(), dispute.CreateParams{
		EscrowID:    req.EscrowID,
		Buyer:       req.Buyer,
		Seller:      req.Seller,
		Evidence:    req.Evidence,
		Description: req.Description,
		OpenedBy:    claims.WalletAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, viewDispute(d))
}

func (s *Server) handleDisputeList(c *gin.Context) {
	limit, offset := pageParams(c)
	disputes, total, err := s.disputes.List(c.Request.Context(), dispute.Filters{
		Status:      dispute.Status(c.Query("status")),
		Participant: c.Query("participant"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, viewDisputes(disputes), total, limit, offset)
}

func (s *Server) handleDisputeStats(c *gin.Context) {
	stats, err := s.disputes.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"total":       stats.Total,
		"pending":     stats.Pending,
		"in_progress": stats.InProgress,
		"resolved":    stats.Resolved,
		"cancelled":   stats.Cancelled,
	})
}

func (s *Server) handleDisputeGet(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	d, err := s.disputes.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewDispute(d))
}

func (s *Server) handleDisputeTimeline(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := s.disputes.Timeline(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewTimeline(entries))
}

type evidenceRequest struct {
	Description string                 `json:"description"`
	Files       []dispute.EvidenceFile `json:"files"`
}

func (s *Server) handleDisputeEvidence(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	claims := claimsFrom(c)
	d, err := s.disputes.AddEvidence(c.Request.Context(), id, claims.WalletAddress, req.Description, req.Files)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewDispute(d))
}

type assignJurorsRequest struct {
	Jurors []struct {
		Address string `json:"address"`
		Stake   string `json:"stake"`
	} `json:"jurors"`
}

func (s *Server) handleDisputeAssignJurors(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req assignJurorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	assignments := make([]dispute.Assignment, 0, len(req.Jurors))
	for _, j := range req.Jurors {
		stake, err := decimal.NewFromString(j.Stake)
		if err != nil {
			respondBadRequest(c, "invalid juror stake")
			return
		}
		assignments = append(assignments, dispute.Assignment{Address: j.Address, Stake: stake})
	}

	d, err := s.disputes.AssignJurors(c.Request.Context(), id, assignments)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewDispute(d))
}

type voteRequest struct {
	Vote string `json:"vote"`
}

func (s *Server) handleDisputeVote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	vote, err := dispute.ParseVote(req.Vote)
	if err != nil {
		respondError(c, err)
		return
	}

	claims := claimsFrom(c)
	d, err := s.disputes.CastVote(c.Request.Context(), id, claims.WalletAddress, vote)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewDispute(d))
}

func (s *Server) handleDisputeCancel(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	claims := claimsFrom(c)
	d, err := s.disputes.Cancel(c.Request.Context(), id, claims.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewDispute(d))
}
