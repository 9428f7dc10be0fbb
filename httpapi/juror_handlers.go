package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type jurorStakeRequest struct {
	Stake string `json:"stake"`
}

func (s *Server) handleJurorRegister(c *gin.Context) {
	var req jurorStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		respondBadRequest(c, "invalid stake")
		return
	}

	claims := claimsFrom(c)
	j, err := s.jurors.Register(c.Request.Context(), claims.WalletAddress, stake)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, viewJuror(j))
}

func (s *Server) handleJurorUnregister(c *gin.Context) {
	claims := claimsFrom(c)
	j, err := s.jurors.Unregister(c.Request.Context(), claims.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewJuror(j))
}

func (s *Server) handleJurorUpdateStake(c *gin.Context) {
	var req jurorStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		respondBadRequest(c, "invalid stake")
		return
	}

	claims := claimsFrom(c)
	j, err := s.jurors.UpdateStake(c.Request.Context(), claims.WalletAddress, stake)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewJuror(j))
}

func (s *Server) handleJurorGet(c *gin.Context) {
	j, err := s.jurors.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewJuror(j))
}

func (s *Server) handleJurorList(c *gin.Context) {
	limit, offset := pageParams(c)
	jurors, total, err := s.jurors.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, viewJurors(jurors), total, limit, offset)
}

func (s *Server) handleJurorTop(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	jurors, err := s.jurors.Top(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewJurors(jurors))
}

func (s *Server) handleJurorStats(c *gin.Context) {
	stats, err := s.jurors.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"active_jurors":    stats.ActiveJurors,
		"total_stake":      stats.TotalStake.String(),
		"average_accuracy": stats.AverageAccuracy,
		"minimum_stake":    stats.MinimumStake.String(),
	})
}
