package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/coordinator"
	"github.com/tmarchetti/gridpay/internal/domain"
	"github.com/tmarchetti/gridpay/internal/registry"
	"github.com/tmarchetti/gridpay/internal/store"
	"github.com/tmarchetti/gridpay/pkg/ledgerclient"
)

// Metrics
var (
	phaseRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpay_phase_requests_total",
		Help: "Phase callback requests processed, labeled by phase and outcome",
	}, []string{"phase", "outcome"})

	phaseRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridpay_phase_request_duration_seconds",
		Help:    "Latency distribution of phase callback processing",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"phase"})

	transfersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpay_transfers_submitted_total",
		Help: "Transfers submitted to the remote ledger, labeled by result",
	}, []string{"result"})
)

// LedgerSubmitter is the slice of the ledger client the handler needs.
type LedgerSubmitter interface {
	SubmitTransfer(ctx context.Context, req ledgerclient.SubmitRequest) (*ledgerclient.SubmitResponse, error)
}

// Handler serves the inbound HTTP surface: the ledger's phase callbacks plus
// the transfer-initiation and lookup endpoints.
type Handler struct {
	reg       *registry.Registry
	processor *coordinator.Processor
	repo      store.Repository
	assets    coordinator.AssetCallback
	ledger    LedgerSubmitter
	callbacks domain.CallbackURIs
	log       zerolog.Logger
}

func NewHandler(
	reg *registry.Registry,
	processor *coordinator.Processor,
	repo store.Repository,
	assets coordinator.AssetCallback,
	ledger LedgerSubmitter,
	callbacks domain.CallbackURIs,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		reg:       reg,
		processor: processor,
		repo:      repo,
		assets:    assets,
		ledger:    ledger,
		callbacks: callbacks,
		log:       log,
	}
}

// RegisterRoutes attaches all endpoints to r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(domain.StatePath, h.TransactionStateHandler).Methods("POST")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/transfers", h.CreateTransferHandler).Methods("POST")
	apiV1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods("GET")
}

// PhaseResponse is the body returned to the remote ledger for a phase
// callback. The ledger keys its retry decision off Message, so the strings
// from the coordinator pass through untouched.
type PhaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TransactionStateHandler handles POST /transactions/state?id=...&state=...,
// the callback URI handed to the remote ledger at submission time.
func (h *Handler) TransactionStateHandler(w http.ResponseWriter, r *http.Request) {
	phase := r.URL.Query().Get("state")
	timer := prometheus.NewTimer(phaseRequestDuration.WithLabelValues(phase))
	defer timer.ObserveDuration()

	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		phaseRequestsTotal.WithLabelValues(phase, "bad_request").Inc()
		respondWithJSON(w, http.StatusBadRequest, PhaseResponse{Success: false, Message: "malformed transaction id"})
		return
	}

	ok, msg, err := h.processor.ProcessPhaseRequest(r.Context(), id, phase, h.assets)
	if err != nil {
		// Only the duplicate-row integrity fault reaches here; it must not be
		// dressed up as a retryable outcome.
		h.log.Error().Err(err).Stringer("txn", id).Str("phase", phase).Msg("phase request hard failure")
		phaseRequestsTotal.WithLabelValues(phase, "fault").Inc()
		respondWithJSON(w, http.StatusInternalServerError, PhaseResponse{Success: false, Message: msg})
		return
	}

	outcome := "failure"
	if ok {
		outcome = "success"
	} else if msg == coordinator.MsgPending {
		outcome = "pending"
	}
	phaseRequestsTotal.WithLabelValues(phase, outcome).Inc()

	respondWithJSON(w, http.StatusOK, PhaseResponse{Success: ok, Message: msg})
}

// TransferRequest is the payload for initiating a currency transfer.
type TransferRequest struct {
	TransactionID  string `json:"transaction_id,omitempty"`
	PayerID        string `json:"payer_id"`
	PayerName      string `json:"payer_name"`
	PayeeID        string `json:"payee_id"`
	PayeeName      string `json:"payee_name"`
	Amount         int64  `json:"amount"`
	TypeCode       int    `json:"type_code"`
	TypeLabel      string `json:"type_label"`
	IsSubscription bool   `json:"is_subscription"`
	SubscriptionID string `json:"subscription_id,omitempty"`

	ObjectID          string `json:"object_id"`
	ObjectName        string `json:"object_name"`
	ObjectDescription string `json:"object_description"`
	Category          string `json:"category"`
	LocalID           uint32 `json:"local_id,omitempty"`
	SaleType          int    `json:"sale_type"`
}

// CreateTransferHandler registers a new transaction and submits it to the
// remote ledger with the three phase-callback URIs. The amount decision
// itself belongs to the caller; this endpoint is the initiation plumbing.
func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	params, err := req.toParams()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Amount <= 0 {
		respondWithError(w, http.StatusUnprocessableEntity, "Positive amount required")
		return
	}
	if params.PayerID == params.PayeeID {
		respondWithError(w, http.StatusUnprocessableEntity, "Self-transfer not allowed")
		return
	}

	tx, err := h.reg.Create(r.Context(), params)
	if err != nil {
		if err == registry.ErrAlreadyExists {
			respondWithError(w, http.StatusConflict, "Transaction already exists")
			return
		}
		h.log.Error().Err(err).Stringer("txn", params.ID).Msg("transaction create failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ack, err := h.ledger.SubmitTransfer(r.Context(), ledgerclient.NewSubmitRequest(tx, h.callbacks))
	if err != nil {
		transfersSubmitted.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Stringer("txn", tx.ID).Msg("ledger submission failed")
		respondWithError(w, http.StatusBadGateway, "Ledger submission failed")
		return
	}

	tx.Submitted = true
	tx.RecordResponse(ack.Accepted, ack.Status, ack.Reason, ack.PayerBalance)
	if err := h.repo.Store(r.Context(), tx); err != nil {
		h.log.Error().Err(err).Stringer("txn", tx.ID).Msg("failed to persist submission state")
	}

	if !ack.Accepted {
		transfersSubmitted.WithLabelValues("declined").Inc()
		respondWithJSON(w, http.StatusUnprocessableEntity, tx)
		return
	}
	transfersSubmitted.WithLabelValues("accepted").Inc()

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", tx.ID))
	respondWithJSON(w, http.StatusCreated, tx)
}

// GetTransactionHandler returns the current record for diagnostics/audit.
func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}

	tx, err := h.reg.Get(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondWithError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Stringer("txn", id).Msg("transaction lookup failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (req TransferRequest) toParams() (domain.TransferParams, error) {
	var p domain.TransferParams
	var err error

	if req.TransactionID == "" {
		p.ID = uuid.New()
	} else if p.ID, err = uuid.Parse(req.TransactionID); err != nil {
		return p, fmt.Errorf("malformed transaction_id")
	}
	if p.PayerID, err = uuid.Parse(req.PayerID); err != nil {
		return p, fmt.Errorf("malformed payer_id")
	}
	if p.PayeeID, err = uuid.Parse(req.PayeeID); err != nil {
		return p, fmt.Errorf("malformed payee_id")
	}
	if req.SubscriptionID != "" {
		if p.SubscriptionID, err = uuid.Parse(req.SubscriptionID); err != nil {
			return p, fmt.Errorf("malformed subscription_id")
		}
	}

	objectID := uuid.Nil
	if req.ObjectID != "" {
		if objectID, err = uuid.Parse(req.ObjectID); err != nil {
			return p, fmt.Errorf("malformed object_id")
		}
	}

	p.PayerName = req.PayerName
	p.PayeeName = req.PayeeName
	p.Amount = req.Amount
	p.TypeCode = req.TypeCode
	p.TypeLabel = req.TypeLabel
	p.IsSubscription = req.IsSubscription
	p.Asset = domain.AssetContext{
		ObjectID:    objectID,
		ObjectName:  req.ObjectName,
		Description: req.ObjectDescription,
		Category:    req.Category,
		LocalID:     req.LocalID,
		SaleType:    req.SaleType,
	}
	return p, nil
}

// Helpers
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
