package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"escrowflow/reputation"
)

func (s *Server) handleReputationGet(c *gin.Context) {
	rec, err := s.reputations.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewReputation(rec))
}

func (s *Server) handleReputationLeaderboard(c *gin.Context) {
	limit, offset := pageParams(c)
	ranked, total, err := s.reputations.Leaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, viewRanked(ranked), total, limit, offset)
}

func (s *Server) handleReputationByTier(c *gin.Context) {
	limit, offset := pageParams(c)
	records, total, err := s.reputations.ByTier(c.Request.Context(),
		reputation.Tier(c.Param("tier")), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, viewReputations(records), total, limit, offset)
}

func (s *Server) handleReputationHistory(c *gin.Context) {
	limit, offset := pageParams(c)
	entries, total, err := s.reputations.History(c.Request.Context(), c.Param("address"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, entries, total, limit, offset)
}

func (s *Server) handleReputationBadges(c *gin.Context) {
	badges, err := s.reputations.Badges(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, badges)
}

func (s *Server) handleReputationStats(c *gin.Context) {
	stats, err := s.reputations.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"users":         stats.Users,
		"average_score": stats.AverageScore,
		"total_badges":  stats.TotalBadges,
		"tiers":         stats.TierCounts,
	})
}

func (s *Server) handleReputationActivity(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := s.reputations.RecentActivity(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

type reputationUpdateRequest struct {
	User      string `json:"user"`
	Action    string `json:"action"`
	RelatedID string `json:"related_id"`
}

func (s *Server) handleReputationUpdate(c *gin.Context) {
	var req reputationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	rec, err := s.reputations.RecordAction(c.Request.Context(), req.User, req.Action, req.RelatedID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewReputation(rec))
}

type awardBadgeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (s *Server) handleReputationAwardBadge(c *gin.Context) {
	var req awardBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	rec, err := s.reputations.AwardBadge(c.Request.Context(), c.Param("address"),
		req.Name, req.Description, reputation.BadgeCategory(req.Category))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewReputation(rec))
}

type adjustRequest struct {
	Change int64  `json:"change"`
	Reason string `json:"reason"`
}

func (s *Server) handleReputationAdjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	rec, err := s.reputations.Adjust(c.Request.Context(), c.Param("address"), req.Change, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewReputation(rec))
}
