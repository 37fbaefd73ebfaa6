package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/coordinator"
	"github.com/tmarchetti/gridpay/internal/domain"
	"github.com/tmarchetti/gridpay/internal/registry"
	"github.com/tmarchetti/gridpay/pkg/ledgerclient"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]*domain.Transaction
}

func (m *memRepo) Store(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.rows[tx.ID] = []*domain.Transaction{&cp}
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, id uuid.UUID) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

type acceptAllAssets struct{}

func (acceptAllAssets) EnactHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	return true, "enacted"
}
func (acceptAllAssets) ConsumeHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	return true, "consumed"
}
func (acceptAllAssets) CancelHold(ctx context.Context, tx *domain.Transaction) (bool, string) {
	return true, "canceled"
}

type stubLedger struct {
	lastReq ledgerclient.SubmitRequest
	resp    ledgerclient.SubmitResponse
	err     error
}

func (s *stubLedger) SubmitTransfer(ctx context.Context, req ledgerclient.SubmitRequest) (*ledgerclient.SubmitResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &s.resp, nil
}

type testServer struct {
	router *mux.Router
	reg    *registry.Registry
	ledger *stubLedger
}

func newTestServer() *testServer {
	repo := &memRepo{rows: map[uuid.UUID][]*domain.Transaction{}}
	reg := registry.New(repo, zerolog.Nop())
	processor := coordinator.NewProcessor(reg, repo, zerolog.Nop())
	ledger := &stubLedger{resp: ledgerclient.SubmitResponse{Accepted: true, Status: "queued", PayerBalance: 900}}
	h := NewHandler(reg, processor, repo, acceptAllAssets{}, ledger,
		domain.NewCallbackURIs("http://sim.local:8008"), zerolog.Nop())

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return &testServer{router: r, reg: reg, ledger: ledger}
}

func (ts *testServer) postPhase(t *testing.T, id, phase string) (*httptest.ResponseRecorder, PhaseResponse) {
	t.Helper()
	q := url.Values{}
	q.Set("id", id)
	q.Set("state", phase)
	req := httptest.NewRequest("POST", domain.StatePath+"?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var body PhaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return rec, body
}

func (ts *testServer) createTransaction(t *testing.T) *domain.Transaction {
	t.Helper()
	tx, err := ts.reg.Create(context.Background(), domain.TransferParams{
		ID:      uuid.New(),
		PayerID: uuid.New(),
		PayeeID: uuid.New(),
		Amount:  750,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func TestTransactionStateHandler_EnactSuccess(t *testing.T) {
	ts := newTestServer()
	tx := ts.createTransaction(t)

	rec, body := ts.postPhase(t, tx.ID.String(), "enact")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !body.Success {
		t.Fatalf("expected success, got %q", body.Message)
	}
	if tx.State != domain.StateEnacted {
		t.Fatalf("expected enacted state, got %v", tx.State)
	}
}

func TestTransactionStateHandler_UnknownTransaction(t *testing.T) {
	ts := newTestServer()

	rec, body := ts.postPhase(t, uuid.New().String(), "enact")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body.Success {
		t.Fatal("expected failure for unknown transaction")
	}
	if body.Message != coordinator.MsgNoMatch {
		t.Fatalf("expected %q, got %q", coordinator.MsgNoMatch, body.Message)
	}
}

func TestTransactionStateHandler_UnknownPhase(t *testing.T) {
	ts := newTestServer()
	tx := ts.createTransaction(t)

	_, body := ts.postPhase(t, tx.ID.String(), "teleport")
	if body.Success {
		t.Fatal("expected failure for unknown phase")
	}
	if body.Message != coordinator.MsgUnrecognized {
		t.Fatalf("expected %q, got %q", coordinator.MsgUnrecognized, body.Message)
	}
}

func TestTransactionStateHandler_MalformedID(t *testing.T) {
	ts := newTestServer()

	rec, _ := ts.postPhase(t, "not-a-uuid", "enact")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTransferHandler(t *testing.T) {
	ts := newTestServer()

	payload := map[string]interface{}{
		"payer_id":    uuid.New().String(),
		"payer_name":  "Aria Vale",
		"payee_id":    uuid.New().String(),
		"payee_name":  "Vendor Nine",
		"amount":      int64(450),
		"type_code":   5008,
		"type_label":  "ObjectSale",
		"object_name": "chair (copy)",
		"sale_type":   2,
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/v1/transfers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !created.Submitted || !created.ResponseSuccess {
		t.Fatal("expected record marked submitted with accepted response")
	}
	if created.PayerBalance != 900 {
		t.Fatalf("expected ledger balance recorded, got %d", created.PayerBalance)
	}

	// The submission must carry the three callback URIs for this id.
	sub := ts.ledger.lastReq
	if sub.TransactionID != created.ID {
		t.Fatalf("ledger got wrong transaction id %s", sub.TransactionID)
	}
	for phase, uri := range map[string]string{
		"enact":   sub.EnactURI,
		"consume": sub.ConsumeURI,
		"cancel":  sub.CancelURI,
	} {
		if !strings.Contains(uri, "state="+phase) || !strings.Contains(uri, created.ID.String()) {
			t.Fatalf("malformed %s callback uri: %s", phase, uri)
		}
	}
}

func TestCreateTransferHandler_RejectsNonPositiveAmount(t *testing.T) {
	ts := newTestServer()

	payload := map[string]interface{}{
		"payer_id": uuid.New().String(),
		"payee_id": uuid.New().String(),
		"amount":   int64(0),
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/v1/transfers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreateTransferHandler_DuplicateIdentifier(t *testing.T) {
	ts := newTestServer()
	tx := ts.createTransaction(t)

	payload := map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"payer_id":       uuid.New().String(),
		"payee_id":       uuid.New().String(),
		"amount":         int64(10),
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/v1/transfers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetTransactionHandler(t *testing.T) {
	ts := newTestServer()
	tx := ts.createTransaction(t)

	req := httptest.NewRequest("GET", "/api/v1/transactions/"+tx.ID.String(), nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/transactions/"+uuid.New().String(), nil)
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer()
	tx := ts.createTransaction(t)

	_, body := ts.postPhase(t, tx.ID.String(), "enact")
	if !body.Success {
		t.Fatalf("enact failed: %q", body.Message)
	}
	_, body = ts.postPhase(t, tx.ID.String(), "consume")
	if !body.Success {
		t.Fatalf("consume failed: %q", body.Message)
	}

	// Late cancel after settlement is a protocol violation and must be final.
	_, body = ts.postPhase(t, tx.ID.String(), "cancel")
	if body.Success {
		t.Fatal("cancel after consume must fail")
	}
	if body.Message != coordinator.MsgAlreadyConsumed {
		t.Fatalf("expected %q, got %q", coordinator.MsgAlreadyConsumed, body.Message)
	}
}
