package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/juror"
	"escrowflow/reputation"
	"escrowflow/timeline"

	"github.com/shopspring/decimal"
)

// EscrowService is the escrow surface the handlers need.
type EscrowService interface {
	Create(ctx context.Context, p escrow.CreateParams) (escrow.Record, error)
	Confirm(ctx context.Context, id int64, actor string) (escrow.Record, error)
	OpenDispute(ctx context.Context, id int64, actor, evidenceHash, description string) (escrow.Record, dispute.Dispute, error)
	Cancel(ctx context.Context, id int64, actor string) (escrow.Record, error)
	GetByID(ctx context.Context, id int64) (escrow.Record, error)
	Timeline(ctx context.Context, id int64) ([]timeline.Entry, error)
	List(ctx context.Context, f escrow.Filters) ([]escrow.Record, int, error)
	Stats(ctx context.Context) (escrow.Stats, error)
}

// DisputeService is the dispute surface the handlers need.
type DisputeService interface {
	Create(ctx context.Context, p dispute.CreateParams) (dispute.Dispute, error)
	AddEvidence(ctx context.Context, id int64, actor, description string, files []dispute.EvidenceFile) (dispute.Dispute, error)
	AssignJurors(ctx context.Context, id int64, assignments []dispute.Assignment) (dispute.Dispute, error)
	CastVote(ctx context.Context, id int64, jurorAddr string, vote dispute.Vote) (dispute.Dispute, error)
	Cancel(ctx context.Context, id int64, actor string) (dispute.Dispute, error)
	GetByID(ctx context.Context, id int64) (dispute.Dispute, error)
	Timeline(ctx context.Context, id int64) ([]timeline.Entry, error)
	List(ctx context.Context, f dispute.Filters) ([]dispute.Dispute, int, error)
	Stats(ctx context.Context) (dispute.Stats, error)
}

// ReputationService is the reputation surface the handlers need.
type ReputationService interface {
	Get(ctx context.Context, user string) (reputation.Record, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]reputation.RankedRecord, int, error)
	ByTier(ctx context.Context, tier reputation.Tier, limit, offset int) ([]reputation.Record, int, error)
	History(ctx context.Context, user string, limit, offset int) ([]reputation.HistoryEntry, int, error)
	Badges(ctx context.Context, user string) ([]reputation.Badge, error)
	Stats(ctx context.Context) (reputation.Stats, error)
	RecentActivity(ctx context.Context, limit int) ([]reputation.ActivityEntry, error)
	RecordAction(ctx context.Context, user, action, relatedID string) (reputation.Record, error)
	AwardBadge(ctx context.Context, user, name, description string, category reputation.BadgeCategory) (reputation.Record, error)
	Adjust(ctx context.Context, user string, change int64, reason string) (reputation.Record, error)
}

// JurorService is the juror-registry surface the handlers need.
type JurorService interface {
	Register(ctx context.Context, address string, stake decimal.Decimal) (juror.Juror, error)
	Unregister(ctx context.Context, address string) (juror.Juror, error)
	UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (juror.Juror, error)
	Get(ctx context.Context, address string) (juror.Juror, error)
	ListActive(ctx context.Context, limit, offset int) ([]juror.Juror, int, error)
	Top(ctx context.Context, limit int) ([]juror.Juror, error)
	Stats(ctx context.Context) (juror.Stats, error)
}

// AuthService is the account surface the handlers need.
type AuthService interface {
	TokenVerifier
	Register(ctx context.Context, p auth.RegisterParams) (auth.User, string, error)
	Login(ctx context.Context, email, password string) (auth.User, string, error)
	GetUser(ctx context.Context, userID string) (auth.User, error)
}

// Server wires the domain services into a gin router.
type Server struct {
	escrows     EscrowService
	disputes    DisputeService
	reputations ReputationService
	jurors      JurorService
	accounts    AuthService
}

func NewServer(escrows EscrowService, disputes DisputeService, reputations ReputationService, jurors JurorService, accounts AuthService) *Server {
	return &Server{
		escrows:     escrows,
		disputes:    disputes,
		reputations: reputations,
		jurors:      jurors,
		accounts:    accounts,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	authed := requireAuth(s.accounts)
	admin := requireRole() // admin passes every role check

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.handleAuthRegister)
		authGroup.POST("/login", s.handleAuthLogin)
		authGroup.GET("/me", authed, s.handleAuthMe)
	}

	escrows := api.Group("/escrows")
	{
		escrows.POST("", authed, s.handleEscrowCreate)
		escrows.GET("", s.handleEscrowList)
		escrows.GET("/stats", s.handleEscrowStats)
		escrows.GET("/:id", s.handleEscrowGet)
		escrows.GET("/:id/timeline", s.handleEscrowTimeline)
		escrows.POST("/:id/confirm", authed, s.handleEscrowConfirm)
		escrows.POST("/:id/dispute", authed, s.handleEscrowDispute)
		escrows.POST("/:id/cancel", authed, admin, s.handleEscrowCancel)
	}

	disputes := api.Group("/disputes")
	{
		disputes.POST("", authed, s.handleDisputeCreate)
		disputes.GET("", s.handleDisputeList)
		disputes.GET("/stats", s.handleDisputeStats)
		disputes.GET("/:id", s.handleDisputeGet)
		disputes.GET("/:id/timeline", s.handleDisputeTimeline)
		disputes.POST("/:id/evidence", authed, s.handleDisputeEvidence)
		disputes.POST("/:id/jurors", authed, requireRole(auth.RoleArbitrator), s.handleDisputeAssignJurors)
		disputes.POST("/:id/vote", authed, requireRole(auth.RoleArbitrator), s.handleDisputeVote)
		disputes.POST("/:id/cancel", authed, admin, s.handleDisputeCancel)
	}

	reputations := api.Group("/reputation")
	{
		reputations.GET("/leaderboard", s.handleReputationLeaderboard)
		reputations.GET("/stats", s.handleReputationStats)
		reputations.GET("/activity", s.handleReputationActivity)
		reputations.GET("/tier/:tier", s.handleReputationByTier)
		reputations.GET("/:address", s.handleReputationGet)
		reputations.GET("/:address/history", s.handleReputationHistory)
		reputations.GET("/:address/badges", s.handleReputationBadges)
		reputations.POST("/update", authed, admin, s.handleReputationUpdate)
		reputations.POST("/:address/badges", authed, admin, s.handleReputationAwardBadge)
		reputations.POST("/:address/adjust", authed, admin, s.handleReputationAdjust)
	}

	jurors := api.Group("/jurors")
	{
		jurors.POST("/register", authed, s.handleJurorRegister)
		jurors.POST("/unregister", authed, s.handleJurorUnregister)
		jurors.PUT("/stake", authed, s.handleJurorUpdateStake)
		jurors.GET("", s.handleJurorList)
		jurors.GET("/top", s.handleJurorTop)
		jurors.GET("/stats", s.handleJurorStats)
		jurors.GET("/:address", s.handleJurorGet)
	}

	return r
}
