package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"escrowflow/escrow"
)

type createEscrowRequest struct {
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Arbitrator   string `json:"arbitrator"`
	Amount       string `json:"amount"`
	TokenAddress string `json:"token_address"`
	TermsHash    string `json:"terms_hash"`
}

func (s *Server) handleEscrowCreate(c *gin.Context) {
	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondBadRequest(c, "invalid amount")
		return
	}

	rec, err := s.escrows.Create(c.Request.Context(), escrow.CreateParams{
		Buyer:        req.Buyer,
		Seller:       req.Seller,
		Arbitrator:   req.Arbitrator,
		Amount:       amount,
		TokenAddress: req.TokenAddress,
		TermsHash:    req.TermsHash,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, viewEscrow(rec))
}

func (s *Server) handleEscrowList(c *gin.Context) {
	limit, offset := pageParams(c)
	records, total, err := s.escrows.List(c.Request.Context(), escrow.Filters{
		Status: escrow.Status(c.Query("status")),
		Party:  c.Query("party"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, viewEscrows(records), total, limit, offset)
}

func (s *Server) handleEscrowStats(c *gin.Context) {
	stats, err := s.escrows.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"total":     stats.Total,
		"active":    stats.Active,
		"completed": stats.Completed,
		"disputed":  stats.Disputed,
		"cancelled": stats.Cancelled,
	})
}

func (s *Server) handleEscrowGet(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := s.escrows.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewEscrow(rec))
}

func (s *Server) handleEscrowTimeline(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := s.escrows.Timeline(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewTimeline(entries))
}

func (s *Server) handleEscrowConfirm(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	claims := claimsFrom(c)
	rec, err := s.escrows.Confirm(c.Request.Context(), id, claims.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewEscrow(rec))
}

type openDisputeRequest struct {
	EvidenceHash string `json:"evidence_hash"`
	Description  string `json:"description"`
}

func (s *Server) handleEscrowDispute(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	claims := claimsFrom(c)
	rec, d, err := s.escrows.OpenDispute(c.Request.Context(), id, claims.WalletAddress, req.EvidenceHash, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"escrow": viewEscrow(rec), "dispute": viewDispute(d)})
}

func (s *Server) handleEscrowCancel(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	claims := claimsFrom(c)
	rec, err := s.escrows.Cancel(c.Request.Context(), id, claims.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewEscrow(rec))
}
