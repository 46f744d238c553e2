package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/integrations/bank"
	"github.com/meridianpay/decision-service/internal/middleware"
	"github.com/meridianpay/decision-service/internal/repository"
	"github.com/meridianpay/decision-service/internal/service"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// MakeDecision handles POST /api/v1/decision.
func (h *Handler) MakeDecision(w http.ResponseWriter, r *http.Request) {
	var req service.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	resp, err := h.svc.Decide(r.Context(), req)
	if err != nil {
		h.respondDecisionError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// respondDecisionError maps pipeline failures to the error taxonomy:
// validation failures are client errors, upstream data failures surface as a
// distinct gateway error, and everything else is internal. A failed request
// never fabricates a denial.
func (h *Handler) respondDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.RequestID(r.Context())

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ferr *bank.FetchError
	if errors.As(err, &ferr) {
		h.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"kind":       ferr.Kind,
		}).Warnf("Decision failed on upstream data: %s", ferr.Detail)
		if ferr.Kind == bank.KindNotFound {
			respondWithError(w, http.StatusNotFound, "User not known to transaction history provider")
			return
		}
		respondWithError(w, http.StatusBadGateway, "Transaction history unavailable")
		return
	}

	h.log.WithField("request_id", requestID).Errorf("Decision failed: %v", err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

type installmentResponse struct {
	ID          string `json:"id"`
	DueDate     string `json:"due_date"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

type planResponse struct {
	PlanID       string                `json:"plan_id"`
	DecisionID   string                `json:"decision_id"`
	UserID       string                `json:"user_id"`
	TotalCents   int64                 `json:"total_cents"`
	CreatedAt    time.Time             `json:"created_at"`
	Installments []installmentResponse `json:"installments"`
}

// GetPlan handles GET /api/v1/plan/{id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]

	plan, err := h.svc.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Plan not found")
			return
		}
		h.log.Errorf("Failed to fetch plan %s: %v", planID, err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := planResponse{
		PlanID:     plan.ID,
		DecisionID: plan.DecisionID,
		UserID:     plan.UserID,
		TotalCents: plan.TotalCents,
		CreatedAt:  plan.CreatedAt,
	}
	for _, inst := range plan.Installments {
		resp.Installments = append(resp.Installments, installmentResponse{
			ID:          inst.ID,
			DueDate:     inst.DueDate.Format("2006-01-02"),
			AmountCents: inst.AmountCents,
			Status:      inst.Status,
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

type decisionHistoryItem struct {
	DecisionID         string    `json:"decision_id"`
	UserID             string    `json:"user_id"`
	RequestedCents     int64     `json:"requested_cents"`
	Approved           bool      `json:"approved"`
	CreditLimitCents   int64     `json:"credit_limit_cents"`
	AmountGrantedCents int64     `json:"amount_granted_cents"`
	RiskScore          int       `json:"risk_score"`
	Band               string    `json:"band"`
	CreatedAt          time.Time `json:"created_at"`
}

type decisionHistoryResponse struct {
	UserID    string                `json:"user_id"`
	Decisions []decisionHistoryItem `json:"decisions"`
}

// GetDecisionHistory handles GET /api/v1/decision/history?user_id=.
func (h *Handler) GetDecisionHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	decisions, err := h.svc.GetDecisionHistory(r.Context(), userID)
	if err != nil {
		h.log.Errorf("Failed to fetch decision history for %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := decisionHistoryResponse{UserID: userID, Decisions: []decisionHistoryItem{}}
	for _, d := range decisions {
		resp.Decisions = append(resp.Decisions, decisionHistoryItem{
			DecisionID:         d.ID,
			UserID:             d.UserID,
			RequestedCents:     d.RequestedCents,
			Approved:           d.Approved,
			CreditLimitCents:   d.CreditLimitCents,
			AmountGrantedCents: d.AmountGrantedCents,
			RiskScore:          d.Breakdown.Total,
			Band:               string(d.Band),
			CreatedAt:          d.CreatedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

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
