package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	loandomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/middleware"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/lock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const description = "[REQ] 140 USD for books. REPAY 50 USD Feb 1, 2025 and REPAY 100 USD Jan 1, 2025 #Boston (Zelle)"

type memLoanRepo struct {
	items  map[string]loandomain.Snapshot
	hashes map[string]bool
}

func (m *memLoanRepo) Create(_ context.Context, s loandomain.Snapshot, hash []byte, _ loandomain.OutboxMessage) (*loandomain.Record, error) {
	if m.hashes[string(hash)] {
		return nil, loandomain.ErrDuplicateSubmission
	}
	m.hashes[string(hash)] = true
	m.items[s.ID] = s
	return &loandomain.Record{Snapshot: s}, nil
}

func (m *memLoanRepo) GetByID(_ context.Context, id string) (*loandomain.Record, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, loandomain.ErrNotFound
	}
	return &loandomain.Record{Snapshot: s}, nil
}

func (m *memLoanRepo) Update(_ context.Context, s loandomain.Snapshot, _ *loandomain.OutboxMessage) error {
	m.items[s.ID] = s
	return nil
}

func (m *memLoanRepo) List(_ context.Context, _ loandomain.ListFilter) ([]loandomain.Record, error) {
	out := make([]loandomain.Record, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, loandomain.Record{Snapshot: s})
	}
	return out, nil
}

func (m *memLoanRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := m.items[id]
	return ok, nil
}

type memNegotiationRepo struct {
	ops map[string][]negotiation.Op
}

func (m *memNegotiationRepo) AppendOp(_ context.Context, loanID string, op negotiation.Op, _ negotiation.OutboxMessage) error {
	m.ops[loanID] = append(m.ops[loanID], op)
	return nil
}

func (m *memNegotiationRepo) ListOps(_ context.Context, loanID string) ([]negotiation.Op, error) {
	return append([]negotiation.Op(nil), m.ops[loanID]...), nil
}

type testAPI struct {
	router *gin.Engine
	jwt    *auth.JWTManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loans := &memLoanRepo{items: map[string]loandomain.Snapshot{}, hashes: map[string]bool{}}
	locker := lock.NewLocal()
	loanSvc := loandomain.NewService(loans, locker, loandomain.ServiceConfig{DefaultCurrency: "USD", DefaultLateFee: decimal.NewFromInt(10)})
	negSvc := negotiation.NewService(&memNegotiationRepo{ops: map[string][]negotiation.Op{}}, loans, locker)
	loanHandler := NewLoanHandler(loanSvc)
	negHandler := NewNegotiationHandler(negSvc, loanSvc)
	jwt := auth.NewJWTManager("iss", "aud", "secret")

	r := gin.New()
	v1 := r.Group("/v1", middleware.RequireAuth(jwt))
	v1.POST("/terms/parse", loanHandler.ParseTerms)
	v1.POST("/loans", middleware.RequireRole(auth.RoleBorrower, auth.RoleAdmin), loanHandler.SubmitLoan)
	v1.GET("/loans/:loanId", loanHandler.GetLoan)
	v1.POST("/loans/:loanId/lender", middleware.RequireRole(auth.RoleLender, auth.RoleAdmin), loanHandler.AssignLender)
	v1.POST("/loans/:loanId/confirm", middleware.RequireRole(auth.RoleLender, auth.RoleAdmin), loanHandler.Confirm)
	v1.POST("/loans/:loanId/payments", middleware.RequireRole(auth.RoleLender, auth.RoleAdmin), loanHandler.RecordPayment)
	v1.POST("/loans/:loanId/late-fee", middleware.RequireRole(auth.RoleLender, auth.RoleAdmin), loanHandler.ImposeLateFee)
	v1.POST("/loans/:loanId/default", middleware.RequireRole(auth.RoleLender, auth.RoleAdmin), loanHandler.MarkDefault)
	v1.PUT("/loans/:loanId/insurance", middleware.RequireRole(auth.RoleAdmin), loanHandler.AttachInsurance)
	v1.GET("/loans/:loanId/negotiations", negHandler.List)
	v1.POST("/loans/:loanId/negotiations", negHandler.Record)
	v1.DELETE("/loans/:loanId/negotiations", negHandler.Undo)
	v1.GET("/loans/:loanId/negotiations/journal", negHandler.Journal)
	return &testAPI{router: r, jwt: jwt}
}

func (a *testAPI) do(t *testing.T, method, path, handle, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	tok, err := a.jwt.Mint(handle, role, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (a *testAPI) fundedLoan(t *testing.T) string {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/v1/loans", "alice", auth.RoleBorrower, `{"description":"`+description+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loanID := body["id"].(string)

	w, _ = a.do(t, http.MethodPost, "/v1/loans/"+loanID+"/lender", "bob", auth.RoleLender, `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = a.do(t, http.MethodPost, "/v1/loans/"+loanID+"/confirm", "bob", auth.RoleLender, ``)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return loanID
}

func TestParseTerms(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/v1/terms/parse", "alice", auth.RoleBorrower, `{"description":"`+description+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Boston", body["location"])

	w, body = api.do(t, http.MethodPost, "/v1/terms/parse", "alice", auth.RoleBorrower, `{"description":"REPAY 5 USD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "malformed_terms", body["error"])
}

func TestSubmitUsesCallerAsBorrower(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/v1/loans", "alice", auth.RoleBorrower, `{"borrower":"mallory","description":"`+description+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", body["borrower"])
	assert.Equal(t, "created", body["status"])

	w, _ = api.do(t, http.MethodPost, "/v1/loans", "bob", auth.RoleLender, `{"description":"`+description+`"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = api.do(t, http.MethodPost, "/v1/loans", "mod", auth.RoleAdmin, `{"submission_id":"t3_x","borrower":"carol","description":"`+description+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "carol", body["borrower"])

	w, body = api.do(t, http.MethodPost, "/v1/loans", "mod", auth.RoleAdmin, `{"submission_id":"t3_x","borrower":"carol","description":"`+description+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_submission", body["error"])
}

func TestPaymentFlowAndErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	loanID := api.fundedLoan(t)
	base := "/v1/loans/" + loanID

	w, body := api.do(t, http.MethodPost, base+"/payments", "bob", auth.RoleLender, `{"amount":"120"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loan := body["loan"].(map[string]any)
	assert.Equal(t, "30", loan["total_balance"])

	w, body = api.do(t, http.MethodPost, base+"/payments", "bob", auth.RoleLender, `{"amount":"31"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "overpayment", body["error"])
	assert.Equal(t, "30", body["outstanding"])

	w, body = api.do(t, http.MethodPost, base+"/payments", "bob", auth.RoleLender, `{"amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_amount", body["error"])

	w, body = api.do(t, http.MethodPost, base+"/payments", "bob", auth.RoleLender, `{"amount":"5","currency":"EUR"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "currency_mismatch", body["error"])

	w, _ = api.do(t, http.MethodPost, base+"/payments", "eve", auth.RoleLender, `{"amount":"5"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = api.do(t, http.MethodPost, base+"/late-fee", "bob", auth.RoleLender, ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["charged"])
	w, body = api.do(t, http.MethodPost, base+"/late-fee", "bob", auth.RoleLender, ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["charged"])

	w, body = api.do(t, http.MethodPost, base+"/payments", "bob", auth.RoleLender, `{"amount":40}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "repaid", body["loan"].(map[string]any)["status"])

	w, body = api.do(t, http.MethodPost, base+"/default", "bob", auth.RoleLender, `{"reason":"gone"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])
}

func TestConfirmWithoutLender(t *testing.T) {
	api := newTestAPI(t)
	w, body := api.do(t, http.MethodPost, "/v1/loans", "alice", auth.RoleBorrower, `{"description":"`+description+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body = api.do(t, http.MethodPost, "/v1/loans/"+body["id"].(string)+"/confirm", "mod", auth.RoleAdmin, ``)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "missing_lender", body["error"])
}

func TestGetUnknownLoan(t *testing.T) {
	api := newTestAPI(t)
	w, body := api.do(t, http.MethodGet, "/v1/loans/nope", "alice", auth.RoleBorrower, ``)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "loan_not_found", body["error"])
}

func TestInsuranceRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	loanID := api.fundedLoan(t)

	w, _ := api.do(t, http.MethodPut, "/v1/loans/"+loanID+"/insurance", "bob", auth.RoleLender, `{"reference":"p-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := api.do(t, http.MethodPut, "/v1/loans/"+loanID+"/insurance", "mod", auth.RoleAdmin, `{"reference":"p-1","details":{"cover":"full"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p-1", body["insurance"].(map[string]any)["reference"])
}

func TestNegotiationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	loanID := api.fundedLoan(t)
	path := "/v1/loans/" + loanID + "/negotiations"

	w, body := api.do(t, http.MethodPost, path, "alice", auth.RoleBorrower,
		`{"proposed_at":"2025-01-05T12:00:00Z","effective_at":"2025-01-06T00:00:00Z","changes":"push feb by a week"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "alice", body["initiator"])

	w, _ = api.do(t, http.MethodPost, path, "eve", auth.RoleBorrower, `{"changes":"mine now"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = api.do(t, http.MethodPost, path, "bob", auth.RoleLender,
		`{"proposed_at":"2025-01-06T12:00:00Z","effective_at":"2025-01-05T00:00:00Z","changes":"backwards"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", body["error"])

	w, body = api.do(t, http.MethodGet, path, "carol", auth.RoleBorrower, ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 1)

	w, _ = api.do(t, http.MethodDelete, path, "bob", auth.RoleLender, ``)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = api.do(t, http.MethodDelete, path, "bob", auth.RoleLender, ``)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "empty_history", body["error"])

	w, body = api.do(t, http.MethodGet, path+"/journal", "carol", auth.RoleBorrower, ``)
	require.Equal(t, http.StatusOK, w.Code)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "append", items[0].(map[string]any)["op"])
	undo := items[1].(map[string]any)
	assert.Equal(t, "undo", undo["op"])
	assert.Equal(t, "push feb by a week", undo["event"].(map[string]any)["changes"])
}

func TestSecondLenderCannotTakeOver(t *testing.T) {
	api := newTestAPI(t)
	w, body := api.do(t, http.MethodPost, "/v1/loans", "alice", auth.RoleBorrower, `{"description":"`+description+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loanID := body["id"].(string)

	w, _ = api.do(t, http.MethodPost, "/v1/loans/"+loanID+"/lender", "bob", auth.RoleLender, `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = api.do(t, http.MethodPost, "/v1/loans/"+loanID+"/lender", "eve", auth.RoleLender, `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])

	w, body = api.do(t, http.MethodGet, "/v1/loans/"+loanID, "alice", auth.RoleBorrower, ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", body["lender"])
}
