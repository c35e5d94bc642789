package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/db"
	"github.com/unclebandit/voiceops-backend/internal/lock"
	"github.com/unclebandit/voiceops-backend/internal/metrics"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/provider"
	"github.com/unclebandit/voiceops-backend/internal/webhook"
)

const testSecret = "test-secret"

// Wednesday 10:00 in New York, inside the default calling window.
var testNow = time.Date(2024, 2, 28, 15, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu        sync.Mutex
	requests  []provider.BatchRequest
	cancelled []string
	err       error
	batches   int
	// onBatch runs before the batch response is returned, standing in for
	// a webhook that arrives while the request is still in flight.
	onBatch func()
}

func (f *fakeProvider) CreateBatchCall(_ context.Context, req provider.BatchRequest) (*provider.BatchResponse, error) {
	if f.onBatch != nil {
		f.onBatch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	f.batches++
	return &provider.BatchResponse{BatchID: fmt.Sprintf("batch-%d", f.batches), Status: "pending"}, nil
}

func (f *fakeProvider) CancelBatch(_ context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, batchID)
	return nil
}

type testEnv struct {
	stores   *Stores
	locks    lock.Locker
	provider *fakeProvider
	metrics  *metrics.Metrics
	log      *zap.Logger
	clock    Clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{
		stores:   NewStores(conn),
		locks:    lock.NewLocal(),
		provider: &fakeProvider{},
		metrics:  metrics.NewNop(),
		log:      zap.NewNop(),
		clock:    func() time.Time { return testNow },
	}
}

func (e *testEnv) reconciler() *Reconciler {
	return &Reconciler{
		Stores:          e.stores,
		Secret:          testSecret,
		ReviewThreshold: -0.3,
		Locks:           e.locks,
		Metrics:         e.metrics,
		Log:             e.log,
		Now:             e.clock,
	}
}

func (e *testEnv) starter() *Starter {
	return &Starter{
		Stores:   e.stores,
		Provider: e.provider,
		Locks:    e.locks,
		Metrics:  e.metrics,
		Log:      e.log,
		Now:      e.clock,
		Timeout:  time.Second,
	}
}

func (e *testEnv) campaigns() *CampaignService {
	return &CampaignService{Stores: e.stores, Provider: e.provider, Locks: e.locks, Log: e.log, Now: e.clock}
}

func (e *testEnv) enrollment() *EnrollmentService {
	return &EnrollmentService{Stores: e.stores, DefaultRegion: "US", Log: e.log, Now: e.clock}
}

func (e *testEnv) createCampaign(t *testing.T, maxAttempts int) *model.Campaign {
	t.Helper()
	c, err := e.campaigns().CreateCampaign(context.Background(), CreateCampaignInput{
		OrgID: 1,
		Name:  "Ready for pickup",
		Retry: &RetryInput{MaxAttempts: maxAttempts, RetryDelayMinutes: 240},
	})
	require.NoError(t, err)
	return c
}

// enrollOne creates a campaign with one target and returns both.
func (e *testEnv) enrollOne(t *testing.T, phone string, maxAttempts int) (*model.Campaign, *model.CampaignTarget) {
	t.Helper()
	ctx := context.Background()
	c := e.createCampaign(t, maxAttempts)
	res, err := e.enrollment().Enroll(ctx, c.ID, []model.TargetInput{{
		Phone:        phone,
		FullName:     "Ada Lovelace",
		VehicleMake:  "Toyota",
		VehicleModel: "Corolla",
		PlateNumber:  "abc123",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	targets, _, err := e.stores.Targets.ListByCampaign(ctx, c.ID, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	return c, targets[0]
}

func (e *testEnv) target(t *testing.T, id int64) *model.CampaignTarget {
	t.Helper()
	tg, err := e.stores.Targets.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tg)
	return tg
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.stores.DB.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func (e *testEnv) deliver(t *testing.T, body []byte) (*ReconcileResult, error) {
	t.Helper()
	return e.reconciler().Reconcile(context.Background(), body, webhook.Sign(testSecret, body))
}

// postCall builds a webhook body tied to target through its metadata.
func postCall(t *testing.T, conversationID string, target *model.CampaignTarget, status string, analysis map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"conversation_id": conversationID,
		"status":          status,
		"transcript":      "agent: hello\ncustomer: hi",
	}
	if target != nil {
		body["metadata"] = map[string]any{
			"target_id":   fmt.Sprint(target.ID),
			"customer_id": fmt.Sprint(target.CustomerID),
			"campaign_id": fmt.Sprint(target.CampaignID),
		}
	}
	if analysis != nil {
		body["analysis"] = analysis
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return b
}
