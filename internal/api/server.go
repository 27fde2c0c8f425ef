// Package api is the HTTP boundary: thin request validation plus
// persistence, with event dispatch handed off to the async pipeline.
package api

import (
	"context"
	"net/http"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/store"
)

// Subscriptions is the subset of the subscription store the API needs.
type Subscriptions interface {
	Create(ctx context.Context, eventType, webhookURL string) (store.Subscription, error)
}

// Orders is the subset of the order store the API needs.
type Orders interface {
	Create(ctx context.Context, customerName string, amount float64) (store.Order, error)
	List(ctx context.Context) ([]store.Order, error)
}

// Dispatcher announces an event onto the dispatch queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, data map[string]any) (message.EventEnvelope, error)
}

type Server struct {
	subs   Subscriptions
	orders Orders
	disp   Dispatcher
	logger *logging.Logger
}

func NewServer(subs Subscriptions, orders Orders, disp Dispatcher, logger *logging.Logger) *Server {
	return &Server{subs: subs, orders: orders, disp: disp, logger: logger}
}

// Routes registers the API handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/subscription", s.handleCreateSubscription)
	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders", s.handleListOrders)
}
