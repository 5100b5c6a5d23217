package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/quotagate/modules/gateway"
	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/history"
	"github.com/dmitrymomot/quotagate/pkg/identity"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/subscription"
	"github.com/dmitrymomot/quotagate/pkg/usage"
)

type fixture struct {
	handler    http.Handler
	store      *subscription.MemoryStore
	dispatcher *usage.Dispatcher
	writer     *history.Writer
	history    *history.MemoryStorage
}

func newFixture(t *testing.T, processor gateway.Processor) *fixture {
	t.Helper()

	catalog := plans.MustCatalog()
	store := subscription.NewMemoryStore()
	resolver, err := entitlement.NewResolver(store, catalog)
	require.NoError(t, err)
	g, err := gate.New(resolver, catalog, gate.WithUpgradeURL("https://app.example.com/billing"))
	require.NoError(t, err)

	storage := history.NewMemoryStorage()
	writer, err := history.NewWriter(storage, history.WriterOptions{BatchTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	recorder, err := usage.NewRecorder(store, usage.WithHistory(writer))
	require.NoError(t, err)
	dispatcher := usage.NewDispatcher()
	tracker, err := usage.NewTracker(recorder, dispatcher, nil)
	require.NoError(t, err)

	router, err := gateway.Router(gateway.RouterOptions{
		Gate:       g,
		Tracker:    tracker,
		Lifecycle:  subscription.NewLifecycle(subscription.WithPlanValidation(store, catalog)),
		Catalog:    catalog,
		History:    storage,
		Processor:  processor,
		APIMinPlan: "pro",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = dispatcher.Close(context.Background())
		_ = writer.Close(context.Background())
	})

	return &fixture{
		handler:    identity.Middleware(nil, identity.WithDevHeader(true))(router),
		store:      store,
		dispatcher: dispatcher,
		writer:     writer,
		history:    storage,
	}
}

func (f *fixture) user(t *testing.T, planID string, used subscription.Delta) uuid.UUID {
	t.Helper()

	id := uuid.New()
	f.store.Put(&subscription.Subscription{UserID: id, PlanID: planID, Status: subscription.StatusActive})
	if !used.IsZero() {
		require.NoError(t, f.store.IncrementUsage(context.Background(), id, subscription.CurrentPeriod(), used))
	}
	return id
}

// settle waits for background recordings and history writes.
func (f *fixture) settle(t *testing.T, userID uuid.UUID) *subscription.Usage {
	t.Helper()

	require.NoError(t, f.dispatcher.Close(context.Background()))
	require.NoError(t, f.writer.Close(context.Background()))
	u, err := f.store.GetUsage(context.Background(), userID, subscription.CurrentPeriod())
	require.NoError(t, err)
	return u
}

func (f *fixture) do(t *testing.T, r *http.Request, userID uuid.UUID) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	if userID != uuid.Nil {
		r.Header.Set(identity.DevHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func jsonRequest(method, path, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func upload(t *testing.T, path, field string, sizes ...int) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, size := range sizes {
		fw, err := mw.CreateFormFile(field, "doc"+string(rune('a'+i))+".pdf")
		require.NoError(t, err)
		_, err = fw.Write(bytes.Repeat([]byte("x"), size))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestRouterRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := gateway.Router(gateway.RouterOptions{})
	assert.ErrorIs(t, err, gateway.ErrGateRequired)
}

func TestUnauthenticated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	for _, r := range []*http.Request{
		jsonRequest(http.MethodGet, "/v1/subscription", ""),
		upload(t, "/v1/documents/split", gateway.FieldFile, 10),
		jsonRequest(http.MethodGet, "/v1/api/ping", ""),
	} {
		rec, body := f.do(t, r, uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.URL.Path)
		assert.Equal(t, gate.CodeAuthenticationRequired, body["error"])
	}
}

func TestGetSubscriptionProvisionsFreePlan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := uuid.New()

	rec, body := f.do(t, jsonRequest(http.MethodGet, "/v1/subscription", ""), id)
	require.Equal(t, http.StatusOK, rec.Code)

	sub := body["subscription"].(map[string]any)
	assert.Equal(t, "free", sub["plan"])
	assert.Equal(t, "active", sub["status"])

	overview := body["usage"].(map[string]any)
	assert.Equal(t, subscription.CurrentPeriod().String(), overview["period"])
	assert.Len(t, overview["dimensions"], 4)

	stored, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "free", stored.PlanID)
}

func TestBasicPlanLastFileOfTheMonth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "basic", subscription.Delta{FilesProcessed: 49})

	rec, body := f.do(t, upload(t, "/v1/documents/split", gateway.FieldFile, 2048), id)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "split", body["operation"])
	assert.Equal(t, "basic", body["plan"])
	assert.NotEmpty(t, body["jobId"])

	used := f.settle(t, id)
	assert.Equal(t, int64(50), used.FilesProcessed)
	assert.Equal(t, int64(2048), used.StorageUsedBytes)

	entries, err := f.history.List(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "split", entries[0].Action)
	assert.Equal(t, int64(2048), entries[0].Bytes)
}

func TestQuotaExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "basic", subscription.Delta{FilesProcessed: 50})

	rec, body := f.do(t, upload(t, "/v1/documents/compress", gateway.FieldFile, 128), id)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gate.CodeQuotaExceeded, body["error"])
	assert.Equal(t, "files", body["limitType"])
	assert.EqualValues(t, 50, body["limit"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.Equal(t, "https://app.example.com/billing?plan=pro", body["upgradeUrl"])

	assert.Equal(t, int64(50), f.settle(t, id).FilesProcessed)
}

func TestMergeRecordsEveryFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "free", subscription.Delta{})

	rec, body := f.do(t, upload(t, "/v1/documents/merge", gateway.FieldFiles, 100, 200, 300), id)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 3, body["files"])
	assert.EqualValues(t, 600, body["bytes"])

	used := f.settle(t, id)
	assert.Equal(t, int64(3), used.FilesProcessed)
	assert.Equal(t, int64(600), used.StorageUsedBytes)
}

func TestMergeValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "free", subscription.Delta{})

	rec, body := f.do(t, upload(t, "/v1/documents/merge", gateway.FieldFiles, 100), id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, gate.CodeInvalidRequest, body["error"])

	rec, body = f.do(t, upload(t, "/v1/documents/merge", gateway.FieldFiles, 1, 1, 1, 1, 1, 1), id)
	assert.Equal(t, http.StatusForbidden, rec.Code, "free plan merges at most five files")
	assert.Equal(t, gate.CodeBatchTooLarge, body["error"])

	assert.Zero(t, f.settle(t, id).FilesProcessed)
}

func TestConvertRequiresFeature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "free", subscription.Delta{})

	rec, body := f.do(t, upload(t, "/v1/documents/convert", gateway.FieldFile, 10), id)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gate.CodeFeatureNotEntitled, body["error"])
	assert.Equal(t, "https://app.example.com/billing?plan=basic", body["upgradeUrl"])
}

func TestSummarizeAndPingMeterTheirDimension(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "pro", subscription.Delta{APICalls: 10})

	rec, _ := f.do(t, upload(t, "/v1/ai/summarize", gateway.FieldFile, 64), id)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, body := f.do(t, jsonRequest(http.MethodGet, "/v1/api/ping", ""), id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["pong"])
	assert.EqualValues(t, 10000-11, body["remaining"])

	used := f.settle(t, id)
	assert.Equal(t, int64(1), used.AIOperations)
	assert.Equal(t, int64(11), used.APICalls)
	assert.Zero(t, used.FilesProcessed)
}

func TestPingRequiresMinimumPlan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "basic", subscription.Delta{})

	rec, body := f.do(t, jsonRequest(http.MethodGet, "/v1/api/ping", ""), id)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gate.CodePlanRequired, body["error"])
	assert.Equal(t, "basic", body["plan"])

	used := f.settle(t, id)
	assert.Zero(t, used.APICalls)
}

func TestRouter_UnknownAPIMinPlan(t *testing.T) {
	t.Parallel()

	catalog := plans.MustCatalog()
	store := subscription.NewMemoryStore()
	resolver, err := entitlement.NewResolver(store, catalog)
	require.NoError(t, err)
	g, err := gate.New(resolver, catalog)
	require.NoError(t, err)
	recorder, err := usage.NewRecorder(store)
	require.NoError(t, err)
	tracker, err := usage.NewTracker(recorder, usage.NewDispatcher(), nil)
	require.NoError(t, err)

	_, err = gateway.Router(gateway.RouterOptions{
		Gate:       g,
		Tracker:    tracker,
		Lifecycle:  subscription.NewLifecycle(store),
		Catalog:    catalog,
		APIMinPlan: "enterprise",
	})
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
}

func TestCancelImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "basic", subscription.Delta{})

	rec, body := f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/cancel", `{"at_period_end":false}`), id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["status"])

	rec, body = f.do(t, upload(t, "/v1/documents/split", gateway.FieldFile, 10), id)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gate.CodeSubscriptionInactive, body["error"])

	rec, body = f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/cancel", ""), id)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, gateway.CodeInvalidTransition, body["error"])
}

func TestCancelAtPeriodEndAndReactivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := uuid.New()
	end := time.Now().UTC().Add(72 * time.Hour)
	f.store.Put(&subscription.Subscription{
		UserID: id, PlanID: "pro", Status: subscription.StatusActive, CurrentPeriodEnd: &end,
	})

	rec, body := f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/cancel", `{"at_period_end":true}`), id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, true, body["cancelAtPeriodEnd"])

	rec, body = f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/reactivate", ""), id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, false, body["cancelAtPeriodEnd"])
}

func TestChangePlan(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	id := f.user(t, "free", subscription.Delta{})

	rec, body := f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/plan", `{"plan":"pro"}`), id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pro", body["subscription"].(map[string]any)["plan"])
	change := body["change"].(map[string]any)
	assert.Equal(t, true, change["isUpgrade"])
	assert.Contains(t, change["newFeatures"], "ai_summary")

	rec, body = f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/plan", `{"plan":"enterprise"}`), id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, gateway.CodeUnknownPlan, body["error"])

	rec, body = f.do(t, jsonRequest(http.MethodPost, "/v1/subscription/plan", `{"tier":3}`), id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, gate.CodeInvalidRequest, body["error"])

	rec, _ = f.do(t, upload(t, "/v1/ai/summarize", gateway.FieldFile, 8), id)
	assert.Equal(t, http.StatusAccepted, rec.Code, "new plan applies on the next request")
}

func TestHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	free := f.user(t, "free", subscription.Delta{})
	basic := f.user(t, "basic", subscription.Delta{})

	rec, body := f.do(t, jsonRequest(http.MethodGet, "/v1/history", ""), free)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gate.CodeFeatureNotEntitled, body["error"])

	rec, _ = f.do(t, upload(t, "/v1/documents/compress", gateway.FieldFile, 32), basic)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t, basic)

	rec, body = f.do(t, jsonRequest(http.MethodGet, "/v1/history?limit=5", ""), basic)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "compress", entries[0].(map[string]any)["action"])

	rec, _ = f.do(t, jsonRequest(http.MethodGet, "/v1/history?limit=zero", ""), basic)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, gateway.Job, []*multipart.FileHeader) (gateway.Job, error) {
	return gateway.Job{}, errors.New("document service unavailable")
}

func TestFailedOperationIsNotMetered(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingProcessor{})
	id := f.user(t, "basic", subscription.Delta{})

	rec, body := f.do(t, upload(t, "/v1/documents/split", gateway.FieldFile, 16), id)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, gate.CodeInternal, body["error"])

	used := f.settle(t, id)
	assert.Zero(t, used.FilesProcessed)
	assert.Zero(t, used.StorageUsedBytes)
}

func TestRouteName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unmatched", gateway.RouteName(httptest.NewRequest(http.MethodGet, "/", nil)))
}
