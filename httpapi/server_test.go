package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/juror"
	"escrowflow/reputation"
	"escrowflow/timeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubEscrows returns canned records and records the last call.
type stubEscrows struct {
	record  escrow.Record
	err     error
	lastOp  string
	actor   string
	records []escrow.Record
	total   int
}

func (s *stubEscrows) Create(ctx context.Context, p escrow.CreateParams) (escrow.Record, error) {
	s.lastOp = "create"
	return s.record, s.err
}
func (s *stubEscrows) Confirm(ctx context.Context, id int64, actor string) (escrow.Record, error) {
	s.lastOp = "confirm"
	s.actor = actor
	return s.record, s.err
}
func (s *stubEscrows) OpenDispute(ctx context.Context, id int64, actor, evidenceHash, description string) (escrow.Record, dispute.Dispute, error) {
	s.lastOp = "dispute"
	s.actor = actor
	return s.record, dispute.Dispute{DisputeID: 7, EscrowID: id}, s.err
}
func (s *stubEscrows) Cancel(ctx context.Context, id int64, actor string) (escrow.Record, error) {
	s.lastOp = "cancel"
	return s.record, s.err
}
func (s *stubEscrows) GetByID(ctx context.Context, id int64) (escrow.Record, error) {
	return s.record, s.err
}
func (s *stubEscrows) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	return []timeline.Entry{{Seq: 1, Action: "Escrow Created"}}, s.err
}
func (s *stubEscrows) List(ctx context.Context, f escrow.Filters) ([]escrow.Record, int, error) {
	return s.records, s.total, s.err
}
func (s *stubEscrows) Stats(ctx context.Context) (escrow.Stats, error) {
	return escrow.Stats{Total: 2, Active: 1, Completed: 1}, s.err
}

type stubDisputes struct {
	dispute dispute.Dispute
	err     error
	voter   string
}

func (s *stubDisputes) Create(ctx context.Context, p dispute.CreateParams) (dispute.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubDisputes) AddEvidence(ctx context.Context, id int64, actor, description string, files []dispute.EvidenceFile) (dispute.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubDisputes) AssignJurors(ctx context.Context, id int64, assignments []dispute.Assignment) (dispute.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubDisputes) CastVote(ctx context.Context, id int64, jurorAddr string, vote dispute.Vote) (dispute.Dispute, error) {
	s.voter = jurorAddr
	return s.dispute, s.err
}
func (s *stubDisputes) Cancel(ctx context.Context, id int64, actor string) (dispute.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubDisputes) GetByID(ctx context.Context, id int64) (dispute.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubDisputes) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	return nil, s.err
}
func (s *stubDisputes) List(ctx context.Context, f dispute.Filters) ([]dispute.Dispute, int, error) {
	return nil, 0, s.err
}
func (s *stubDisputes) Stats(ctx context.Context) (dispute.Stats, error) {
	return dispute.Stats{}, s.err
}

type stubReputations struct {
	record reputation.Record
	err    error
}

func (s *stubReputations) Get(ctx context.Context, user string) (reputation.Record, error) {
	return s.record, s.err
}
func (s *stubReputations) Leaderboard(ctx context.Context, limit, offset int) ([]reputation.RankedRecord, int, error) {
	return []reputation.RankedRecord{{Rank: 1, Record: s.record}}, 1, s.err
}
func (s *stubReputations) ByTier(ctx context.Context, tier reputation.Tier, limit, offset int) ([]reputation.Record, int, error) {
	return nil, 0, s.err
}
func (s *stubReputations) History(ctx context.Context, user string, limit, offset int) ([]reputation.HistoryEntry, int, error) {
	return nil, 0, s.err
}
func (s *stubReputations) Badges(ctx context.Context, user string) ([]reputation.Badge, error) {
	return nil, s.err
}
func (s *stubReputations) Stats(ctx context.Context) (reputation.Stats, error) {
	return reputation.Stats{}, s.err
}
func (s *stubReputations) RecentActivity(ctx context.Context, limit int) ([]reputation.ActivityEntry, error) {
	return nil, s.err
}
func (s *stubReputations) RecordAction(ctx context.Context, user, action, relatedID string) (reputation.Record, error) {
	return s.record, s.err
}
func (s *stubReputations) AwardBadge(ctx context.Context, user, name, description string, category reputation.BadgeCategory) (reputation.Record, error) {
	return s.record, s.err
}
func (s *stubReputations) Adjust(ctx context.Context, user string, change int64, reason string) (reputation.Record, error) {
	return s.record, s.err
}

type stubJurors struct {
	juror juror.Juror
	err   error
}

func (s *stubJurors) Register(ctx context.Context, address string, stake decimal.Decimal) (juror.Juror, error) {
	return s.juror, s.err
}
func (s *stubJurors) Unregister(ctx context.Context, address string) (juror.Juror, error) {
	return s.juror, s.err
}
func (s *stubJurors) UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (juror.Juror, error) {
	return s.juror, s.err
}
func (s *stubJurors) Get(ctx context.Context, address string) (juror.Juror, error) {
	return s.juror, s.err
}
func (s *stubJurors) ListActive(ctx context.Context, limit, offset int) ([]juror.Juror, int, error) {
	return nil, 0, s.err
}
func (s *stubJurors) Top(ctx context.Context, limit int) ([]juror.Juror, error) {
	return nil, s.err
}
func (s *stubJurors) Stats(ctx context.Context) (juror.Stats, error) {
	return juror.Stats{MinimumStake: decimal.NewFromInt(1000)}, s.err
}

// stubAccounts accepts exactly two tokens: "trader-token" and
// "admin-token".
type stubAccounts struct {
	user auth.User
	err  error
}

func (s *stubAccounts) VerifyToken(token string) (*auth.Claims, error) {
	switch token {
	case "trader-token":
		return &auth.Claims{UserID: "u1", WalletAddress: "0xwallet", Role: auth.RoleTrader}, nil
	case "arbitrator-token":
		return &auth.Claims{UserID: "u2", WalletAddress: "0xarb", Role: auth.RoleArbitrator}, nil
	case "admin-token":
		return &auth.Claims{UserID: "u3", WalletAddress: "0xadmin", Role: auth.RoleAdmin}, nil
	}
	return nil, auth.ErrInvalidToken
}
func (s *stubAccounts) Register(ctx context.Context, p auth.RegisterParams) (auth.User, string, error) {
	return s.user, "new-token", s.err
}
func (s *stubAccounts) Login(ctx context.Context, email, password string) (auth.User, string, error) {
	return s.user, "new-token", s.err
}
func (s *stubAccounts) GetUser(ctx context.Context, userID string) (auth.User, error) {
	return s.user, s.err
}

type fixture struct {
	router      *gin.Engine
	escrows     *stubEscrows
	disputes    *stubDisputes
	reputations *stubReputations
	jurors      *stubJurors
	accounts    *stubAccounts
}

func newFixture() *fixture {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		escrows: &stubEscrows{record: escrow.Record{
			EscrowID: 1, Buyer: "0xwallet", Seller: "0xseller",
			Amount: decimal.NewFromInt(100), TermsHash: "0xterms",
			Status: escrow.StatusActive, CreatedAt: now, UpdatedAt: now,
		}},
		disputes:    &stubDisputes{dispute: dispute.Dispute{DisputeID: 7, EscrowID: 1, Status: dispute.StatusPending}},
		reputations: &stubReputations{record: reputation.NewRecord("0xwallet", now)},
		jurors:      &stubJurors{juror: juror.Juror{Address: "0xwallet", Stake: decimal.NewFromInt(1500), IsActive: true}},
		accounts:    &stubAccounts{user: auth.User{Email: "t@example.com", WalletAddress: "0xwallet", Role: auth.RoleTrader}},
	}
	f.router = NewServer(f.escrows, f.disputes, f.reputations, f.jurors, f.accounts).Router()
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/escrows", "", `{"buyer":"a","seller":"b","amount":"1","terms_hash":"h"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/escrows", "bogus", `{"buyer":"a","seller":"b","amount":"1","terms_hash":"h"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
}

func TestEscrowCreate(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/escrows", "trader-token",
		`{"buyer":"0xwallet","seller":"0xseller","amount":"100","terms_hash":"0xterms"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "create", f.escrows.lastOp)

	w = f.do(http.MethodPost, "/api/escrows", "trader-token",
		`{"buyer":"0xwallet","seller":"0xseller","amount":"not-a-number","terms_hash":"h"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowConfirmUsesWalletFromToken(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/escrows/1/confirm", "trader-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xwallet", f.escrows.actor)
}

func TestEscrowErrorMapping(t *testing.T) {
	f := newFixture()

	f.escrows.err = escrow.ErrNotFound
	w := f.do(http.MethodGet, "/api/escrows/42", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.escrows.err = escrow.ErrNotActive
	w = f.do(http.MethodPost, "/api/escrows/42/confirm", "trader-token", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	f.escrows.err = escrow.ErrNotParty
	w = f.do(http.MethodPost, "/api/escrows/42/confirm", "trader-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/api/escrows/not-a-number", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowListPagination(t *testing.T) {
	f := newFixture()
	f.escrows.records = []escrow.Record{f.escrows.record}
	f.escrows.total = 37

	w := f.do(http.MethodGet, "/api/escrows?limit=5&offset=10", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 37, env.Pagination.Total)
	assert.Equal(t, 5, env.Pagination.Limit)
	assert.Equal(t, 10, env.Pagination.Offset)
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/escrows/1/cancel", "trader-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/escrows/1/cancel", "admin-token", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/disputes/7/cancel", "trader-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDisputeVoteRequiresArbitrator(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/disputes/7/vote", "trader-token", `{"vote":"Buyer"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/disputes/7/vote", "arbitrator-token", `{"vote":"Buyer"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xarb", f.disputes.voter, "voter identity comes from the token")

	w = f.do(http.MethodPost, "/api/disputes/7/vote", "arbitrator-token", `{"vote":"Maybe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeErrorMapping(t *testing.T) {
	f := newFixture()

	f.disputes.err = dispute.ErrAlreadyVoted
	w := f.do(http.MethodPost, "/api/disputes/7/vote", "arbitrator-token", `{"vote":"Buyer"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	f.disputes.err = dispute.ErrNotJuror
	w = f.do(http.MethodPost, "/api/disputes/7/vote", "arbitrator-token", `{"vote":"Buyer"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	f.disputes.err = dispute.ErrDuplicate
	w = f.do(http.MethodPost, "/api/disputes", "trader-token",
		`{"escrow_id":1,"buyer":"a","seller":"b","evidence_hash":"h"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReputationRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/reputation/0xwallet", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.True(t, env.Success)

	w = f.do(http.MethodGet, "/api/reputation/leaderboard", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Admin mutation is gated.
	w = f.do(http.MethodPost, "/api/reputation/update", "trader-token",
		`{"user":"0xwallet","action":"transaction_success"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/reputation/update", "admin-token",
		`{"user":"0xwallet","action":"transaction_success"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJurorRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/jurors/register", "trader-token", `{"stake":"1500"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	f.jurors.err = juror.ErrStakeTooLow
	w = f.do(http.MethodPost, "/api/jurors/register", "trader-token", `{"stake":"10"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.jurors.err = nil
	w = f.do(http.MethodGet, "/api/jurors/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.True(t, env.Success)
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/auth/register", "",
		`{"email":"t@example.com","password":"longenough","wallet_address":"0xwallet"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	f.accounts.err = auth.ErrInvalidCredentials
	w = f.do(http.MethodPost, "/api/auth/login", "", `{"email":"t@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.accounts.err = nil
	w = f.do(http.MethodGet, "/api/auth/me", "trader-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
