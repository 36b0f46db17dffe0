package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

type stripeRequest struct {
	Method         string
	Path           string
	IdempotencyKey string
	Form           url.Values
}

// fakeStripe answers the subset of the Stripe API the gateway adapter calls.
// Objects are keyed by idempotency key so retries return the first result.
type fakeStripe struct {
	mu          sync.Mutex
	seq         int
	requests    []stripeRequest
	accounts    map[string]map[string]any
	intents     map[string]map[string]any
	idempotency map[string]map[string]any
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		accounts:    map[string]map[string]any{},
		intents:     map[string]map[string]any{},
		idempotency: map[string]map[string]any{},
	}
}

func (f *fakeStripe) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
	f.accounts = map[string]map[string]any{}
	f.intents = map[string]map[string]any{}
	f.idempotency = map[string]map[string]any{}
}

func (f *fakeStripe) requestsTo(method, path string) []stripeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []stripeRequest
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	req := stripeRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Form:           r.Form,
	}
	f.requests = append(f.requests, req)

	if req.IdempotencyKey != "" {
		if prior, ok := f.idempotency[req.Method+" "+req.Path+" "+req.IdempotencyKey]; ok {
			f.writeJSON(w, prior)
			return
		}
	}

	obj, status := f.route(req)
	if status != http.StatusOK {
		f.writeError(w, status, "no such route: "+req.Method+" "+req.Path)
		return
	}
	if req.IdempotencyKey != "" {
		f.idempotency[req.Method+" "+req.Path+" "+req.IdempotencyKey] = obj
	}
	f.writeJSON(w, obj)
}

func (f *fakeStripe) route(req stripeRequest) (map[string]any, int) {
	now := time.Now()
	switch {
	case req.Method == http.MethodGet && req.Path == "/v1/customers":
		return map[string]any{"object": "list", "data": []any{}, "has_more": false, "url": "/v1/customers"}, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/customers":
		return map[string]any{"id": f.nextID("cus"), "object": "customer", "email": req.Form.Get("email")}, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/checkout/sessions":
		id := f.nextID("cs")
		return map[string]any{
			"id":         id,
			"object":     "checkout.session",
			"url":        "https://checkout.stripe.com/c/pay/" + id,
			"expires_at": now.Add(time.Hour).Unix(),
		}, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/accounts":
		id := f.nextID("acct")
		account := map[string]any{
			"id":                id,
			"object":            "account",
			"charges_enabled":   false,
			"payouts_enabled":   false,
			"details_submitted": false,
		}
		f.accounts[id] = account
		return account, http.StatusOK
	case req.Method == http.MethodGet && strings.HasPrefix(req.Path, "/v1/accounts/"):
		account, ok := f.accounts[strings.TrimPrefix(req.Path, "/v1/accounts/")]
		if !ok {
			return nil, http.StatusNotFound
		}
		return account, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/account_links":
		return map[string]any{
			"object":     "account_link",
			"url":        "https://connect.stripe.com/setup/e/" + req.Form.Get("account"),
			"created":    now.Unix(),
			"expires_at": now.Add(5 * time.Minute).Unix(),
		}, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/payment_intents":
		id := f.nextID("pi")
		amount, _ := strconv.ParseInt(req.Form.Get("amount"), 10, 64)
		intent := map[string]any{
			"id":            id,
			"object":        "payment_intent",
			"client_secret": id + "_secret_e2e",
			"amount":        amount,
			"currency":      req.Form.Get("currency"),
			"status":        "requires_payment_method",
		}
		f.intents[id] = intent
		return intent, http.StatusOK
	case req.Method == http.MethodGet && strings.HasPrefix(req.Path, "/v1/payment_intents/"):
		intent, ok := f.intents[strings.TrimPrefix(req.Path, "/v1/payment_intents/")]
		if !ok {
			return nil, http.StatusNotFound
		}
		return intent, http.StatusOK
	case req.Method == http.MethodPost && req.Path == "/v1/transfers":
		amount, _ := strconv.ParseInt(req.Form.Get("amount"), 10, 64)
		return map[string]any{
			"id":          f.nextID("tr"),
			"object":      "transfer",
			"amount":      amount,
			"currency":    req.Form.Get("currency"),
			"destination": req.Form.Get("destination"),
		}, http.StatusOK
	default:
		return nil, http.StatusNotFound
	}
}

// enablePayouts mirrors what Stripe reports after onboarding completes.
func (f *fakeStripe) enablePayouts(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[accountID]; ok {
		account["charges_enabled"] = true
		account["payouts_enabled"] = true
		account["details_submitted"] = true
	}
}

func (f *fakeStripe) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_e2e_%d", prefix, f.seq)
}

func (f *fakeStripe) writeJSON(w http.ResponseWriter, obj map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(obj)
}

func (f *fakeStripe) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":    "invalid_request_error",
			"message": message,
		},
	})
}
