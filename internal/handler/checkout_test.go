package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attaboy/giveaways/internal/auth"
	"github.com/attaboy/giveaways/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheckout struct {
	created   domain.CreateIntentParams
	confirmed domain.ConfirmParams
	err       error
}

func (s *stubCheckout) CreateIntent(_ context.Context, p domain.CreateIntentParams) (*domain.CheckoutStart, error) {
	s.created = p
	if s.err != nil {
		return nil, s.err
	}
	return &domain.CheckoutStart{Ref: "gw_abc", State: domain.IntentPending, Qty: p.Qty, Provider: p.Provider}, nil
}

func (s *stubCheckout) GetIntent(_ context.Context, ref string, userID uuid.UUID) (*domain.CheckoutIntent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.CheckoutIntent{Ref: ref, UserID: userID, State: domain.IntentPending}, nil
}

func (s *stubCheckout) ConfirmAndAward(_ context.Context, p domain.ConfirmParams) (*domain.AwardPayload, error) {
	s.confirmed = p
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AwardPayload{Confirmed: true, CheckoutRef: p.Ref, Qty: 2}, nil
}

func checkoutRouter(svc CheckoutAPI, user uuid.UUID) http.Handler {
	h := NewCheckoutHandler(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != uuid.Nil {
				claims := &auth.Claims{Realm: auth.RealmUser}
				claims.Subject = user.String()
				req = req.WithContext(auth.WithClaims(req.Context(), claims))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/checkout/intents", h.CreateIntent)
	r.Get("/checkout/intents/{ref}", h.GetIntent)
	r.Post("/checkout/intents/{ref}/confirm", h.Confirm)
	return r
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCheckoutHandler_CreateIntent(t *testing.T) {
	user := uuid.New()
	campaign := uuid.New()
	svc := &stubCheckout{}
	h := checkoutRouter(svc, user)

	w := do(h, http.MethodPost, "/checkout/intents",
		`{"campaign_id":"`+campaign.String()+`","qty":3,"provider":" Stripe "}`,
		map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, user, svc.created.UserID)
	assert.Equal(t, campaign, svc.created.CampaignID)
	assert.Equal(t, 3, svc.created.Qty)
	assert.Equal(t, "stripe", svc.created.Provider)
	assert.Equal(t, "key-1", svc.created.IdempotencyKey)

	var start domain.CheckoutStart
	require.NoError(t, json.NewDecoder(w.Body).Decode(&start))
	assert.Equal(t, "gw_abc", start.Ref)

	t.Run("missing campaign", func(t *testing.T) {
		w := do(h, http.MethodPost, "/checkout/intents", `{"qty":1}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		w := do(h, http.MethodPost, "/checkout/intents", `{`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := do(checkoutRouter(svc, uuid.Nil), http.MethodPost, "/checkout/intents", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCheckoutHandler_Confirm(t *testing.T) {
	user := uuid.New()
	svc := &stubCheckout{}
	h := checkoutRouter(svc, user)

	w := do(h, http.MethodPost, "/checkout/intents/gw_abc/confirm", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ConfirmParams{Ref: "gw_abc", UserID: user, Provider: "stripe"}, svc.confirmed)

	w = do(h, http.MethodPost, "/checkout/intents/gw_abc/confirm", `{"verification_ref":"cs_1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cs_1", svc.confirmed.VerificationRef)

	outcomes := []struct {
		err    error
		status int
	}{
		{domain.ErrPaymentPending("waiting for provider"), http.StatusAccepted},
		{domain.ErrSoldOut(), http.StatusConflict},
		{domain.ErrPaymentFailed("declined"), http.StatusPaymentRequired},
		{domain.ErrForbidden("not yours"), http.StatusForbidden},
		{domain.ErrNotFound("checkout", "gw_abc"), http.StatusNotFound},
		{domain.ErrTransactionFailed(errors.New("serialization failure")), http.StatusServiceUnavailable},
	}
	for _, tt := range outcomes {
		svc.err = tt.err
		w := do(h, http.MethodPost, "/checkout/intents/gw_abc/confirm", "", nil)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

func TestCheckoutHandler_GetIntent(t *testing.T) {
	user := uuid.New()
	h := checkoutRouter(&stubCheckout{}, user)

	w := do(h, http.MethodGet, "/checkout/intents/gw_xyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var intent domain.CheckoutIntent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&intent))
	assert.Equal(t, "gw_xyz", intent.Ref)
}

// --- webhook ---

type stubWebhook struct {
	payload []byte
	sig     string
	err     error
}

func (s *stubWebhook) HandleStripeWebhook(_ context.Context, payload []byte, sig string) error {
	s.payload, s.sig = payload, sig
	return s.err
}

func TestWebhookHandler(t *testing.T) {
	stub := &stubWebhook{}
	h := NewWebhookHandler(stub, noopLogger())

	w := do(http.HandlerFunc(h.HandleStripeWebhook), http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`,
		map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, string(stub.payload))
	assert.Equal(t, "t=1,v1=abc", stub.sig)

	w = do(http.HandlerFunc(h.HandleStripeWebhook), http.MethodPost, "/webhooks/stripe", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = domain.ErrUnauthorized("invalid signature")
	w = do(http.HandlerFunc(h.HandleStripeWebhook), http.MethodPost, "/webhooks/stripe", `{}`,
		map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- snapshots ---

type stubSnapshots map[string]*domain.Snapshot

func (s stubSnapshots) Get(_ context.Context, entity domain.SnapshotEntity, id uuid.UUID, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	return s[string(entity)+":"+id.String()+":"+string(kind)], nil
}

func TestSnapshotHandler(t *testing.T) {
	id := uuid.New()
	snaps := stubSnapshots{
		"campaign:" + id.String() + ":detail": {
			Entity: domain.SnapshotCampaign, EntityID: id, Kind: domain.SnapshotDetail,
			Payload: json.RawMessage(`{"title":"Win a car"}`), GeneratedAt: time.Now(),
		},
	}
	h := NewSnapshotHandler(snaps)
	r := chi.NewRouter()
	r.Get("/campaigns/{id}/snapshot", h.GetCampaignSnapshot)
	r.Get("/campaigns/{id}/winner", h.GetWinnerSnapshot)

	w := do(r, http.MethodGet, "/campaigns/"+id.String()+"/snapshot", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))
	var got domain.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.JSONEq(t, `{"title":"Win a car"}`, string(got.Payload))

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/campaigns/"+id.String()+"/snapshot?kind=list", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/campaigns/"+id.String()+"/snapshot?kind=full", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/campaigns/nope/snapshot", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/campaigns/"+id.String()+"/winner", "", nil).Code)
}

// --- job trigger ---

type stubDraws struct{ err error }

func (s stubDraws) RunDue(context.Context, time.Time) (*domain.DrawSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DrawSummary{Status: domain.RunStatusOK, Processed: 2, Ended: 1, Extended: 1, Errors: []domain.RunError{}}, nil
}

type stubRunner struct{}

func (stubRunner) RunOnce(context.Context) (*domain.JobRunSummary, error) {
	return &domain.JobRunSummary{Status: domain.RunStatusNothingToDo, Errors: []domain.RunError{}}, nil
}

func TestJobsHandler(t *testing.T) {
	h := NewJobsHandler(stubDraws{}, stubRunner{}, noopLogger())

	w := do(http.HandlerFunc(h.RunDraw), http.MethodPost, "/internal/jobs/draw", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","processed":2,"ended":1,"extended":1,"errors":[]}`, w.Body.String())

	w = do(http.HandlerFunc(h.RunJobs), http.MethodPost, "/internal/jobs/run", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"nothing_to_do"`)

	failing := NewJobsHandler(stubDraws{err: domain.ErrInternal("list due", errors.New("db down"))}, stubRunner{}, noopLogger())
	w = do(http.HandlerFunc(failing.RunDraw), http.MethodPost, "/internal/jobs/draw", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- rate limit and health ---

type stubLimiter struct{ keys []string }

func (l *stubLimiter) Check(_ context.Context, key string) domain.GuardResult {
	l.keys = append(l.keys, key)
	return domain.GuardResult{Allowed: len(l.keys) <= 1, Reason: "too many", Guard: "rate_limiter"}
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{}
	user := uuid.New()
	h := RateLimit(limiter, noopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	claims := &auth.Claims{Realm: auth.RealmUser}
	claims.Subject = user.String()
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(auth.WithClaims(context.Background(), claims))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, []string{"user:" + user.String(), "user:" + user.String()}, limiter.keys)

	anon := httptest.NewRequest(http.MethodPost, "/", nil)
	anon.RemoteAddr = "10.1.2.3:4000"
	h.ServeHTTP(httptest.NewRecorder(), anon)
	assert.Equal(t, "ip:10.1.2.3", limiter.keys[2])
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	w := do(HealthHandler(map[string]Checker{"postgres": ok}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = do(HealthHandler(map[string]Checker{"postgres": ok, "redis": down}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"component":"redis"`)
}
