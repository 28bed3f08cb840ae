package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagen/internal/domain"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/ledger"
	"mediagen/internal/middleware"
	"mediagen/internal/providers/image"
	"mediagen/internal/providers/video"
	"mediagen/internal/stream"
	"mediagen/internal/webhook"
	"mediagen/internal/workflow"
)

const (
	testJWTSecret     = "jwt-secret"
	testWebhookSecret = "webhook-secret"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.GenerationJob

	// afterGetForUser, when set, runs after each ownership read. Tests use it
	// to interleave a transition between that read and a later operation.
	afterGetForUser func()
}

func (m *memJobRepo) Create(_ context.Context, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) GetByID(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobRepo) GetForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	job, err := m.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if m.afterGetForUser != nil {
		m.afterGetForUser()
	}
	return job, nil
}

func (m *memJobRepo) GetByProviderJobID(_ context.Context, providerJobID string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ProviderJobID == providerJobID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ListForUser(_ context.Context, userID string, limit int) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationJob
	for _, job := range m.jobs {
		if job.UserID == userID && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobRepo) TransitionStatus(_ context.Context, jobID string, from []domain.JobStatus, to domain.JobStatus, upd domain.JobUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if job.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	job.Status = to
	if upd.ProviderJobID != nil {
		job.ProviderJobID = *upd.ProviderJobID
	}
	if upd.ImageAssetID != nil {
		job.ImageAssetID = *upd.ImageAssetID
	}
	if upd.VideoAssetID != nil {
		job.VideoAssetID = *upd.VideoAssetID
	}
	if upd.ErrorMessage != nil {
		job.ErrorMessage = *upd.ErrorMessage
	}
	if upd.ErrorCode != nil {
		job.ErrorCode = *upd.ErrorCode
	}
	if upd.StartedAt != nil {
		job.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		job.CompletedAt = upd.CompletedAt
	}
	if to == domain.JobStatusPaused && upd.PrePauseStatus != nil {
		job.PrePauseStatus = *upd.PrePauseStatus
	} else if to != domain.JobStatusPaused {
		job.PrePauseStatus = ""
	}
	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *memJobRepo) FindStaleGeneratingVideo(context.Context, time.Time) ([]domain.GenerationJob, error) {
	return nil, nil
}

type memUserRepo struct {
	users map[string]*domain.User
}

func (m *memUserRepo) GetByID(_ context.Context, userID string) (*domain.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

type memCreditRepo struct {
	mu       sync.Mutex
	balances map[string]int
	entries  []domain.CreditLedgerEntry
}

func (m *memCreditRepo) Balance(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return bal, nil
}

func (m *memCreditRepo) ReserveAndCharge(_ context.Context, entry *domain.CreditLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[entry.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if bal+entry.Amount < 0 {
		return domain.ErrInsufficientCredits
	}
	m.balances[entry.UserID] = bal + entry.Amount
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memCreditRepo) Refund(_ context.Context, entry *domain.CreditLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[entry.UserID] += entry.Amount
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memCreditRepo) SetBalance(_ context.Context, userID string, newBalance int, entry *domain.CreditLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = newBalance
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memCreditRepo) Entries(_ context.Context, userID string, limit int) ([]domain.CreditLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditLedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAssetRepo struct {
	mu     sync.Mutex
	assets []domain.Asset
}

func (m *memAssetRepo) Create(_ context.Context, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, *asset)
	return nil
}

func (m *memAssetRepo) GetByID(_ context.Context, assetID string) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.assets {
		if m.assets[i].ID == assetID {
			cp := m.assets[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAssetRepo) ListByJobID(_ context.Context, jobID string) ([]domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Asset
	for _, a := range m.assets {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memWebhookRepo struct {
	mu   sync.Mutex
	recs []domain.WebhookRecord
}

func (m *memWebhookRepo) Create(_ context.Context, rec *domain.WebhookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memWebhookRepo) ListByProviderJobID(_ context.Context, providerJobID string, limit int) ([]domain.WebhookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookRecord
	for _, r := range m.recs {
		if r.ProviderJobID == providerJobID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubImage struct{}

func (stubImage) Generate(_ context.Context, req image.Request) (*image.Result, error) {
	return &image.Result{URL: "https://provider.example/img", Data: []byte("png"), Mime: "image/png"}, nil
}

type stubVideo struct {
	mu sync.Mutex
	n  int
}

func (s *stubVideo) Submit(context.Context, video.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("prov-%d", s.n), nil
}

func (s *stubVideo) Cancel(context.Context, string) error { return nil }

type stubStore struct{}

func (stubStore) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.example/" + key, nil
}

type stubDownload struct{}

func (stubDownload) Download(context.Context, string) ([]byte, string, error) {
	return []byte("bytes"), "video/mp4", nil
}

type harness struct {
	router  http.Handler
	jobs    *memJobRepo
	credits *memCreditRepo
	hub     *stream.Hub
}

func newHarness(t *testing.T, balances map[string]int) *harness {
	t.Helper()
	logger := zerolog.Nop()
	jobs := &memJobRepo{jobs: make(map[string]*domain.GenerationJob)}
	credits := &memCreditRepo{balances: balances}
	users := &memUserRepo{users: make(map[string]*domain.User)}
	for id, bal := range balances {
		users.users[id] = &domain.User{ID: id, Email: id + "@example.com", Plan: "starter", CreditBalance: bal}
	}
	assets := &memAssetRepo{}
	hub := stream.NewHub(logger)
	ledgerSvc := ledger.NewService(credits, logger)
	orch := workflow.New(workflow.Options{
		Jobs:     jobs,
		Assets:   assets,
		Ledger:   ledgerSvc,
		ImageGen: stubImage{},
		VideoGen: &stubVideo{},
		Store:    stubStore{},
		Download: stubDownload{},
		Hub:      hub,
		Logger:   logger,
	})
	app := &handlers.App{
		Workflow: orch,
		Ledger:   ledgerSvc,
		Jobs:     jobs,
		Assets:   assets,
		Users:    users,
		Hub:      hub,
		Receiver: webhook.NewReceiver(&memWebhookRepo{}, jobs, testWebhookSecret, logger),
		Logger:   logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret: testJWTSecret,
		Logger:    logger,
	})
	return &harness{router: router, jobs: jobs, credits: credits, hub: hub}
}

func (h *harness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := middleware.SignJWT(testJWTSecret, middleware.TokenClaims{
			Sub: userID,
			Exp: time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGenerateImageOnly(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 10})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{
		"kind":   "IMAGE",
		"prompt": "a lighthouse in a storm",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "VIDEO_READY", body["status"])
	assert.Equal(t, float64(5), body["cost"])
	assert.NotEmpty(t, body["image_url"])

	rec = h.do(t, http.MethodGet, "/v1/credits/balance", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decode[map[string]any](t, rec)["balance"])
}

func TestGenerateRequiresAuth(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 10})
	rec := h.do(t, http.MethodPost, "/v1/generations", "", map[string]string{"kind": "IMAGE", "prompt": "anything"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateInsufficientCredits(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 3})
	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE", "prompt": "a lighthouse"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_credits", decode[map[string]any](t, rec)["error"])
}

func TestGenerateInvalidPrompt(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 100})
	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE", "prompt": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateUnknownKind(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 100})
	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "HOLOGRAM", "prompt": "a lighthouse"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndListGenerations(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 100, "u2": 100})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "sunset over dunes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	rec = h.do(t, http.MethodGet, "/v1/generations/"+jobID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GENERATING_VIDEO", decode[map[string]any](t, rec)["status"])

	// Another user cannot see it.
	rec = h.do(t, http.MethodGet, "/v1/generations/"+jobID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/generations", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[map[string][]map[string]any](t, rec)["items"]
	require.Len(t, items, 1)
}

func TestCancelGeneration(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 25})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "sunset over dunes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	rec = h.do(t, http.MethodPost, "/v1/generations/"+jobID+"/cancel", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FAILED", decode[map[string]any](t, rec)["status"])

	rec = h.do(t, http.MethodGet, "/v1/credits/balance", "u1", nil)
	assert.Equal(t, float64(25), decode[map[string]any](t, rec)["balance"])

	rec = h.do(t, http.MethodPost, "/v1/generations/"+jobID+"/cancel", "u1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 25})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "sunset over dunes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	rec = h.do(t, http.MethodPost, "/v1/generations/"+jobID+"/pause", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PAUSED", decode[map[string]any](t, rec)["status"])

	rec = h.do(t, http.MethodPost, "/v1/generations/"+jobID+"/resume", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GENERATING_VIDEO", decode[map[string]any](t, rec)["status"])

	rec = h.do(t, http.MethodPost, "/v1/generations/"+jobID+"/resume", "u1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreditCheck(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 10})

	rec := h.do(t, http.MethodGet, "/v1/credits/check?kind=IMAGE", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["sufficient"])
	assert.Equal(t, float64(5), body["cost"])

	rec = h.do(t, http.MethodGet, "/v1/credits/check?kind=IMAGE_THEN_VIDEO", "u1", nil)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, false, body["sufficient"])
	assert.Equal(t, float64(25), body["cost"])

	rec = h.do(t, http.MethodGet, "/v1/credits/check?kind=AUDIO", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoWebhookCompletesJob(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 25})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "sunset over dunes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	job, err := h.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]any{
		"provider_job_id": job.ProviderJobID,
		"status":          "completed",
		"video_url":       "https://provider.example/out.mp4",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/video", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", webhook.Sign(payload, testWebhookSecret))
	wrec := httptest.NewRecorder()
	h.router.ServeHTTP(wrec, req)
	require.Equal(t, http.StatusOK, wrec.Code)

	rec = h.do(t, http.MethodGet, "/v1/generations/"+jobID, "u1", nil)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "VIDEO_READY", body["status"])
	assert.NotEmpty(t, body["video_url"])
}

func TestVideoWebhookBadSignatureStillAccepted(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 25})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "sunset over dunes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)
	job, err := h.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]any{
		"provider_job_id": job.ProviderJobID,
		"status":          "completed",
		"video_url":       "https://provider.example/out.mp4",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/video", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", "sha256=deadbeef")
	wrec := httptest.NewRecorder()
	h.router.ServeHTTP(wrec, req)
	assert.Equal(t, http.StatusOK, wrec.Code)

	// Stored but not processed: the job did not move.
	got, err := h.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusGeneratingVideo, got.Status)
}

func TestStreamTerminalJobSendsSnapshot(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 10})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE", "prompt": "a lighthouse"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	srec := h.do(t, http.MethodGet, "/v1/generations/"+jobID+"/events", "u1", nil)
	require.Equal(t, http.StatusOK, srec.Code)
	assert.Equal(t, "text/event-stream", srec.Header().Get("Content-Type"))
	body := srec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: status\n"), body)
	assert.Contains(t, body, `"status":"VIDEO_READY"`)
}

func TestStreamSnapshotCatchesTransitionDuringAttach(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 25})

	rec := h.do(t, http.MethodPost, "/v1/generations", "u1", map[string]string{"kind": "IMAGE_THEN_VIDEO", "prompt": "a lighthouse"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode[map[string]any](t, rec)["id"].(string)

	// Complete the job and close its channel set right after the stream
	// handler's ownership read, before it can subscribe. The snapshot must
	// reflect the terminal status so the stream still terminates.
	var once sync.Once
	h.jobs.afterGetForUser = func() {
		once.Do(func() {
			h.jobs.mu.Lock()
			h.jobs.jobs[jobID].Status = domain.JobStatusVideoReady
			h.jobs.mu.Unlock()
			h.hub.Publish(jobID, stream.Event{
				Type:   stream.EventWorkflowComplete,
				JobID:  jobID,
				Status: string(domain.JobStatusVideoReady),
			})
			h.hub.CloseJob(jobID)
		})
	}

	srec := h.do(t, http.MethodGet, "/v1/generations/"+jobID+"/events", "u1", nil)
	require.Equal(t, http.StatusOK, srec.Code)
	body := srec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: status\n"), body)
	assert.Contains(t, body, `"status":"VIDEO_READY"`)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	h := newHarness(t, map[string]int{"u1": 10})

	rec := h.do(t, http.MethodGet, "/v1/me", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "u1@example.com", body["email"])
	assert.Equal(t, float64(10), body["credit_balance"])

	rec = h.do(t, http.MethodGet, "/v1/me", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
