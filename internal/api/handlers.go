package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/hookline/hookline/internal/store"
)

const orderCreatedEvent = "order.created"

var errInvalidWebhookURL = errors.New("webhook_url must be an absolute http(s) URL")

type createSubscriptionRequest struct {
	EventType  string `json:"event_type"`
	WebhookURL string `json:"webhook_url"`
}

type createOrderRequest struct {
	CustomerName string  `json:"customer_name"`
	Amount       float64 `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.EventType) == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if err := validateWebhookURL(req.WebhookURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.subs.Create(r.Context(), req.EventType, req.WebhookURL)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("create subscription failed")
		writeError(w, http.StatusInternalServerError, "could not create subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.CustomerName) == "" {
		writeError(w, http.StatusBadRequest, "customer_name is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}

	order, err := s.orders.Create(r.Context(), req.CustomerName, req.Amount)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("create order failed")
		writeError(w, http.StatusInternalServerError, "could not create order")
		return
	}

	// Fire-and-forget past this point: a pipeline failure is never surfaced
	// to the caller. A failed enqueue, however, means the event was not
	// accepted at all, and that we do surface.
	data := map[string]any{
		"id":            order.ID,
		"customer_name": order.CustomerName,
		"amount":        order.Amount,
		"created_at":    order.CreatedAt,
	}
	if _, err := s.disp.Dispatch(r.Context(), orderCreatedEvent, data); err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("dispatch order.created failed")
		writeError(w, http.StatusServiceUnavailable, "order created but event dispatch failed")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.List(r.Context())
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list orders failed")
		writeError(w, http.StatusInternalServerError, "could not list orders")
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// validateWebhookURL requires an absolute http(s) URL with a host.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errInvalidWebhookURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errInvalidWebhookURL
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
