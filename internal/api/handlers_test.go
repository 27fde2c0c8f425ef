package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/store"
)

type fakeSubscriptions struct {
	created []store.Subscription
	err     error
}

func (f *fakeSubscriptions) Create(_ context.Context, eventType, webhookURL string) (store.Subscription, error) {
	if f.err != nil {
		return store.Subscription{}, f.err
	}
	sub := store.Subscription{ID: "sub-1", EventType: eventType, WebhookURL: webhookURL, CreatedAt: time.Now().UTC()}
	f.created = append(f.created, sub)
	return sub, nil
}

type fakeOrders struct {
	orders []store.Order
	err    error
}

func (f *fakeOrders) Create(_ context.Context, customerName string, amount float64) (store.Order, error) {
	if f.err != nil {
		return store.Order{}, f.err
	}
	o := store.Order{ID: "ord-1", CustomerName: customerName, Amount: amount, CreatedAt: time.Now().UTC()}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeOrders) List(_ context.Context) ([]store.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

type fakeDispatcher struct {
	events []message.EventEnvelope
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, eventType string, data map[string]any) (message.EventEnvelope, error) {
	if f.err != nil {
		return message.EventEnvelope{}, f.err
	}
	env := message.NewEventEnvelope(eventType, data, nil)
	f.events = append(f.events, env)
	return env, nil
}

func newTestServer(subs *fakeSubscriptions, orders *fakeOrders, disp *fakeDispatcher) *http.ServeMux {
	srv := NewServer(subs, orders, disp, logging.New("api-test"))
	mux := http.NewServeMux()
	srv.Routes(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateSubscriptionValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid https", body: `{"event_type":"order.created","webhook_url":"https://example.com/hook"}`, wantStatus: http.StatusOK},
		{name: "valid http", body: `{"event_type":"order.created","webhook_url":"http://example.com/hook"}`, wantStatus: http.StatusOK},
		{name: "missing event type", body: `{"webhook_url":"https://example.com/hook"}`, wantStatus: http.StatusBadRequest},
		{name: "blank event type", body: `{"event_type":"   ","webhook_url":"https://example.com/hook"}`, wantStatus: http.StatusBadRequest},
		{name: "relative url", body: `{"event_type":"order.created","webhook_url":"/hook"}`, wantStatus: http.StatusBadRequest},
		{name: "not a url", body: `{"event_type":"order.created","webhook_url":"not a url"}`, wantStatus: http.StatusBadRequest},
		{name: "wrong scheme", body: `{"event_type":"order.created","webhook_url":"ftp://example.com/hook"}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptions{}
			mux := newTestServer(subs, &fakeOrders{}, &fakeDispatcher{})
			rec := doRequest(t, mux, http.MethodPost, "/webhooks/subscription", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && len(subs.created) != 1 {
				t.Errorf("subscriptions created = %d, want 1", len(subs.created))
			}
			if tt.wantStatus != http.StatusOK && len(subs.created) != 0 {
				t.Errorf("invalid request must not create a subscription")
			}
		})
	}
}

func TestCreateOrderDispatchesEvent(t *testing.T) {
	orders := &fakeOrders{}
	disp := &fakeDispatcher{}
	mux := newTestServer(&fakeSubscriptions{}, orders, disp)

	rec := doRequest(t, mux, http.MethodPost, "/orders", `{"customer_name":"Ada","amount":42.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(disp.events) != 1 {
		t.Fatalf("dispatched events = %d, want 1", len(disp.events))
	}
	env := disp.events[0]
	if env.EventType != "order.created" {
		t.Errorf("event type = %q, want order.created", env.EventType)
	}
	if env.Data["customer_name"] != "Ada" {
		t.Errorf("event data = %v", env.Data)
	}

	var got store.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "ord-1" || got.Amount != 42.5 {
		t.Errorf("response order = %+v", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"amount":10}`},
		{name: "blank name", body: `{"customer_name":"  ","amount":10}`},
		{name: "zero amount", body: `{"customer_name":"Ada","amount":0}`},
		{name: "negative amount", body: `{"customer_name":"Ada","amount":-3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{}
			disp := &fakeDispatcher{}
			mux := newTestServer(&fakeSubscriptions{}, orders, disp)
			rec := doRequest(t, mux, http.MethodPost, "/orders", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(orders.orders) != 0 {
				t.Error("invalid order must not be persisted")
			}
			if len(disp.events) != 0 {
				t.Error("invalid order must not dispatch an event")
			}
		})
	}
}

func TestCreateOrderDispatchFailure(t *testing.T) {
	orders := &fakeOrders{}
	disp := &fakeDispatcher{err: errors.New("queue full")}
	mux := newTestServer(&fakeSubscriptions{}, orders, disp)

	rec := doRequest(t, mux, http.MethodPost, "/orders", `{"customer_name":"Ada","amount":10}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	// The order itself was persisted before the dispatch failed.
	if len(orders.orders) != 1 {
		t.Errorf("orders persisted = %d, want 1", len(orders.orders))
	}
}

func TestListOrders(t *testing.T) {
	orders := &fakeOrders{orders: []store.Order{
		{ID: "ord-1", CustomerName: "Ada", Amount: 10},
		{ID: "ord-2", CustomerName: "Grace", Amount: 20},
	}}
	mux := newTestServer(&fakeSubscriptions{}, orders, &fakeDispatcher{})

	rec := doRequest(t, mux, http.MethodGet, "/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []store.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("orders = %d, want 2", len(got))
	}
}

func TestListOrdersEmptyIsArray(t *testing.T) {
	mux := newTestServer(&fakeSubscriptions{}, &fakeOrders{}, &fakeDispatcher{})
	rec := doRequest(t, mux, http.MethodGet, "/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestValidateWebhookURL(t *testing.T) {
	valid := []string{"https://example.com/hook", "http://localhost:8080/hook"}
	for _, u := range valid {
		if err := validateWebhookURL(u); err != nil {
			t.Errorf("validateWebhookURL(%q) = %v, want nil", u, err)
		}
	}
	invalid := []string{"", "not a url", "/relative", "ftp://example.com", "https://"}
	for _, u := range invalid {
		if err := validateWebhookURL(u); !errors.Is(err, errInvalidWebhookURL) {
			t.Errorf("validateWebhookURL(%q) = %v, want errInvalidWebhookURL", u, err)
		}
	}
}
