package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/ledger"
	"mediagen/internal/metrics"
	"mediagen/internal/providers/image"
	"mediagen/internal/providers/video"
	"mediagen/internal/storage"
	"mediagen/internal/stream"
)

// Error codes surfaced on failed jobs.
const (
	codeImageProvider   = "image_provider_error"
	codeVideoProvider   = "video_provider_error"
	codeVideoFailed     = "video_generation_failed"
	codeStorage         = "storage_error"
	codeCancelled       = "cancelled"
	codeProviderTimeout = "provider_timeout"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Jobs      domain.JobRepository
	Assets    domain.AssetRepository
	Ledger    *ledger.Service
	ImageGen  image.Generator
	VideoGen  video.Submitter
	Store     storage.MediaStore
	Download  storage.Downloader
	Hub       *stream.Hub
	Validator PromptValidator
	Pricing   Pricing
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	// ImageTimeout bounds the synchronous image stage.
	ImageTimeout time.Duration
	// CallbackURL is handed to the video provider for webhook delivery.
	CallbackURL string
	// ProviderName is recorded on jobs and assets.
	ProviderName string
}

// Orchestrator drives a generation job from submission to a terminal status.
// It holds no per-job state of its own: transitions are serialized by the job
// store's conditional updates, so concurrent webhook deliveries and user
// actions resolve at the storage layer, not here.
type Orchestrator struct {
	jobs      domain.JobRepository
	assets    domain.AssetRepository
	ledger    *ledger.Service
	imageGen  image.Generator
	videoGen  video.Submitter
	store     storage.MediaStore
	download  storage.Downloader
	hub       *stream.Hub
	validator PromptValidator
	pricing   Pricing
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	imageTimeout time.Duration
	callbackURL  string
	providerName string
}

// New constructs the orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Validator == nil {
		opts.Validator = BasicValidator{}
	}
	if opts.Pricing == (Pricing{}) {
		opts.Pricing = DefaultPricing()
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 45 * time.Second
	}
	if opts.ProviderName == "" {
		opts.ProviderName = "default"
	}
	return &Orchestrator{
		jobs:         opts.Jobs,
		assets:       opts.Assets,
		ledger:       opts.Ledger,
		imageGen:     opts.ImageGen,
		videoGen:     opts.VideoGen,
		store:        opts.Store,
		download:     opts.Download,
		hub:          opts.Hub,
		validator:    opts.Validator,
		pricing:      opts.Pricing,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With().Str("component", "workflow").Logger(),
		imageTimeout: opts.ImageTimeout,
		callbackURL:  opts.CallbackURL,
		providerName: opts.ProviderName,
	}
}

// SubmitRequest is one user-initiated generation request.
type SubmitRequest struct {
	UserID    string
	ProjectID string
	Kind      domain.JobKind
	Prompt    string
	Style     string
	Quality   string
	Size      string
}

// Submit validates, charges, creates the job and runs the image stage inline.
// The image provider is request/response, so by the time Submit returns the
// job is at IMAGE_READY, GENERATING_VIDEO, VIDEO_READY or FAILED.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidPrompt, req.Kind)
	}
	if err := o.validator.Validate(ctx, req.Prompt); err != nil {
		return nil, err
	}
	cost, err := o.pricing.For(req.Kind)
	if err != nil {
		return nil, err
	}

	job := &domain.GenerationJob{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		Kind:        req.Kind,
		Status:      domain.JobStatusQueued,
		Prompt:      req.Prompt,
		ImagePrompt: DeriveImagePrompt(req.Prompt, req.Style, req.Quality),
		Provider:    o.providerName,
		Cost:        cost,
	}
	if req.Kind == domain.JobKindImageThenVideo {
		job.VideoPrompt = DeriveVideoPrompt(req.Prompt)
	}

	if _, err := o.ledger.ReserveAndCharge(ctx, req.UserID, cost, fmt.Sprintf("%s generation", req.Kind), job.ID); err != nil {
		return nil, err
	}
	o.metrics.Charged(cost)

	if err := o.jobs.Create(ctx, job); err != nil {
		// Money taken with no job row is unacceptable; compensate before
		// surfacing the failure.
		if _, refundErr := o.ledger.Refund(ctx, req.UserID, cost, "job creation failed", job.ID); refundErr != nil {
			o.logger.Error().Err(refundErr).Str("user_id", req.UserID).Str("job_id", job.ID).Msg("compensating refund failed, ledger requires manual reconciliation")
		} else {
			o.metrics.Refunded(cost)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.metrics.JobCreated(string(req.Kind))
	o.logger.Info().Str("job_id", job.ID).Str("user_id", req.UserID).Str("kind", string(req.Kind)).Int("cost", cost).Msg("job created")

	o.runImageStage(ctx, job)

	return o.jobs.GetByID(ctx, job.ID)
}

// runImageStage performs the synchronous image stage and, when the kind
// requires it, issues the async video submission.
func (o *Orchestrator) runImageStage(ctx context.Context, job *domain.GenerationJob) {
	now := time.Now()
	ok, err := o.jobs.TransitionStatus(ctx, job.ID,
		[]domain.JobStatus{domain.JobStatusQueued}, domain.JobStatusGeneratingImage,
		domain.JobUpdate{StartedAt: &now})
	if err != nil || !ok {
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("start image stage failed")
		}
		return
	}
	o.publishUpdate(job.ID, domain.JobStatusGeneratingImage, "generating image", 0)

	stageCtx, cancel := context.WithTimeout(ctx, o.imageTimeout)
	defer cancel()

	result, err := o.imageGen.Generate(stageCtx, image.Request{
		Prompt:    job.ImagePrompt,
		RequestID: job.ID,
	})
	if err != nil {
		o.failJob(ctx, job, codeImageProvider, fmt.Sprintf("image generation failed: %v", err))
		return
	}

	asset, err := o.persistMedia(ctx, job, domain.AssetKindImage, result.URL, result.Data, result.Mime, result.Width, result.Height)
	if err != nil {
		o.failJob(ctx, job, codeStorage, fmt.Sprintf("image persistence failed: %v", err))
		return
	}

	ok, err = o.jobs.TransitionStatus(ctx, job.ID,
		[]domain.JobStatus{domain.JobStatusGeneratingImage}, domain.JobStatusImageReady,
		domain.JobUpdate{ImageAssetID: &asset.ID})
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("transition to IMAGE_READY failed")
		return
	}
	if !ok {
		// Cancelled mid-stage; the other writer already settled the job.
		return
	}
	o.publishUpdate(job.ID, domain.JobStatusImageReady, "image ready", 50)

	if job.Kind == domain.JobKindImage {
		completed := time.Now()
		ok, err = o.jobs.TransitionStatus(ctx, job.ID,
			[]domain.JobStatus{domain.JobStatusImageReady}, domain.JobStatusVideoReady,
			domain.JobUpdate{CompletedAt: &completed})
		if err != nil || !ok {
			return
		}
		o.metrics.JobCompleted()
		o.publishTerminal(job.ID, domain.JobStatusVideoReady, stream.Event{
			Type:     stream.EventWorkflowComplete,
			ImageURL: asset.URL,
		})
		return
	}

	o.submitVideoStage(ctx, job, asset.URL)
}

// submitVideoStage issues the async video request and records the provider's
// job id for webhook correlation.
func (o *Orchestrator) submitVideoStage(ctx context.Context, job *domain.GenerationJob, baseImageURL string) {
	providerJobID, err := o.videoGen.Submit(ctx, video.Request{
		Prompt:       job.VideoPrompt,
		BaseImageURL: baseImageURL,
		CallbackURL:  o.callbackURL,
		RequestID:    job.ID,
	})
	if err != nil {
		o.failJob(ctx, job, codeVideoProvider, fmt.Sprintf("video submission failed: %v", err))
		return
	}

	ok, err := o.jobs.TransitionStatus(ctx, job.ID,
		[]domain.JobStatus{domain.JobStatusImageReady}, domain.JobStatusGeneratingVideo,
		domain.JobUpdate{ProviderJobID: &providerJobID})
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("transition to GENERATING_VIDEO failed")
		return
	}
	if !ok {
		// Lost to a cancel. The provider job keeps running; best-effort abort.
		if cancelErr := o.videoGen.Cancel(ctx, providerJobID); cancelErr != nil {
			o.logger.Warn().Err(cancelErr).Str("job_id", job.ID).Msg("abort of orphaned provider job failed")
		}
		return
	}
	o.logger.Info().Str("job_id", job.ID).Str("provider_job_id", providerJobID).Msg("video stage submitted")
	o.publishUpdate(job.ID, domain.JobStatusGeneratingVideo, "generating video", 55)
}

// HandleWebhook applies one correlated, processable provider event to its
// job. Repeated terminal events become no-ops through the conditional
// transition; the refund is gated behind the same guard, so it fires at most
// once per job.
func (o *Orchestrator) HandleWebhook(ctx context.Context, job *domain.GenerationJob, event *domain.VideoWebhookEvent) error {
	switch event.Status {
	case domain.VideoWebhookProcessing:
		if !job.Status.IsTerminal() {
			o.publishUpdate(job.ID, job.Status, "video rendering", event.ProgressPercentage)
		}
		return nil

	case domain.VideoWebhookCompleted:
		return o.completeVideo(ctx, job, event)

	case domain.VideoWebhookFailed:
		msg := event.ErrorMessage
		if msg == "" {
			msg = "video generation failed"
		}
		o.failJob(ctx, job, codeVideoFailed, msg)
		return nil

	default:
		o.logger.Warn().Str("job_id", job.ID).Str("status", string(event.Status)).Msg("unknown webhook status ignored")
		return nil
	}
}

func (o *Orchestrator) completeVideo(ctx context.Context, job *domain.GenerationJob, event *domain.VideoWebhookEvent) error {
	if job.Status.IsTerminal() {
		o.logger.Info().Str("job_id", job.ID).Msg("duplicate completion webhook ignored, job already terminal")
		return nil
	}
	if event.VideoURL == "" {
		o.failJob(ctx, job, codeVideoFailed, "completion webhook missing video url")
		return nil
	}

	data, contentType, err := o.download.Download(ctx, event.VideoURL)
	if err != nil {
		// The provider URL is transient; nothing durable reached the user.
		o.failJob(ctx, job, codeStorage, fmt.Sprintf("video download failed: %v", err))
		return nil
	}
	key := fmt.Sprintf("generated/videos/%s/video%s", job.ID, extensionForMime(contentType))
	publicURL, err := o.store.Upload(ctx, key, data, contentType)
	if err != nil {
		o.failJob(ctx, job, codeStorage, fmt.Sprintf("video persistence failed: %v", err))
		return nil
	}

	assetID := uuid.NewString()
	completed := time.Now()
	ok, err := o.jobs.TransitionStatus(ctx, job.ID,
		[]domain.JobStatus{domain.JobStatusGeneratingVideo, domain.JobStatusPaused}, domain.JobStatusVideoReady,
		domain.JobUpdate{VideoAssetID: &assetID, CompletedAt: &completed})
	if err != nil {
		return err
	}
	if !ok {
		o.logger.Info().Str("job_id", job.ID).Msg("completion webhook lost the transition race, discarding")
		return nil
	}

	asset := &domain.Asset{
		ID:       assetID,
		UserID:   job.UserID,
		JobID:    job.ID,
		Kind:     domain.AssetKindVideo,
		URL:      publicURL,
		Mime:     contentType,
		Bytes:    int64(len(data)),
		Provider: o.providerName,
	}
	if err := o.assets.Create(ctx, asset); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("asset_id", assetID).Msg("video asset insert failed after terminal transition")
	}

	o.metrics.JobCompleted()
	o.publishTerminal(job.ID, domain.JobStatusVideoReady, stream.Event{
		Type:     stream.EventWorkflowComplete,
		VideoURL: publicURL,
	})
	o.logger.Info().Str("job_id", job.ID).Msg("job completed")
	return nil
}

// Cancel fails a non-terminal job on the user's behalf and refunds the
// reserved cost. The provider abort is best-effort.
func (o *Orchestrator) Cancel(ctx context.Context, userID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	if job.ProviderJobID != "" {
		if err := o.videoGen.Cancel(ctx, job.ProviderJobID); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("provider abort failed, continuing with local cancel")
		}
	}
	if !o.failJob(ctx, job, codeCancelled, "cancelled by user") {
		// A webhook settled the job first; its outcome stands.
		return nil, domain.ErrConflict
	}
	return o.jobs.GetByID(ctx, jobID)
}

// Pause marks a job paused for display. Providers keep running regardless;
// this is user-facing bookkeeping only.
func (o *Orchestrator) Pause(ctx context.Context, userID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	prior := job.Status
	ok, err := o.jobs.TransitionStatus(ctx, jobID, domain.PausableStatuses(), domain.JobStatusPaused,
		domain.JobUpdate{PrePauseStatus: &prior})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrJobNotPausable
	}
	o.publishUpdate(jobID, domain.JobStatusPaused, "paused", 0)
	return o.jobs.GetByID(ctx, jobID)
}

// Resume restores the status stashed at pause time.
func (o *Orchestrator) Resume(ctx context.Context, userID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPaused {
		return nil, domain.ErrJobNotPaused
	}
	prior := job.PrePauseStatus
	valid := false
	for _, s := range domain.PausableStatuses() {
		if prior == s {
			valid = true
			break
		}
	}
	if !valid {
		prior = domain.JobStatusGeneratingVideo
	}
	ok, err := o.jobs.TransitionStatus(ctx, jobID, []domain.JobStatus{domain.JobStatusPaused}, prior, domain.JobUpdate{})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConflict
	}
	o.publishUpdate(jobID, prior, "resumed", 0)
	return o.jobs.GetByID(ctx, jobID)
}

// ReapStale fails jobs stuck in GENERATING_VIDEO since before the cutoff.
// The provider's webhook never arrived; refund through the same guarded path
// a failure webhook takes, so a late webhook still loses cleanly.
func (o *Orchestrator) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := o.jobs.FindStaleGeneratingVideo(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for i := range stale {
		job := &stale[i]
		if o.failJob(ctx, job, codeProviderTimeout, "provider never delivered a completion webhook") {
			reaped++
		}
	}
	if reaped > 0 {
		o.logger.Warn().Int("count", reaped).Msg("stale video jobs reaped")
	}
	return reaped, nil
}

// Progress returns the advisory estimate for a job.
func (o *Orchestrator) Progress(job *domain.GenerationJob) ProgressEstimate {
	return EstimateProgress(job, time.Now())
}

// Price returns the reserved cost for a job kind.
func (o *Orchestrator) Price(kind domain.JobKind) (int, error) {
	return o.pricing.For(kind)
}

// failJob moves the job to FAILED from any non-terminal status and refunds
// the reserved cost. The conditional transition is the idempotency guard: a
// writer that loses the race performs no side effects, so the refund happens
// at most once per job. Returns whether this writer won.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.GenerationJob, code, message string) bool {
	completed := time.Now()
	ok, err := o.jobs.TransitionStatus(ctx, job.ID, domain.NonTerminalStatuses(), domain.JobStatusFailed,
		domain.JobUpdate{ErrorMessage: &message, ErrorCode: &code, CompletedAt: &completed})
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("transition to FAILED errored")
		return false
	}
	if !ok {
		return false
	}

	if job.Cost > 0 {
		if _, err := o.ledger.Refund(ctx, job.UserID, job.Cost, fmt.Sprintf("refund: %s", message), job.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Str("user_id", job.UserID).Msg("refund failed, ledger requires manual reconciliation")
		} else {
			o.metrics.Refunded(job.Cost)
		}
	}
	o.metrics.JobFailed(code)
	o.publishTerminal(job.ID, domain.JobStatusFailed, stream.Event{
		Type:         stream.EventError,
		ErrorCode:    code,
		ErrorMessage: message,
	})
	o.logger.Info().Str("job_id", job.ID).Str("code", code).Str("message", message).Msg("job failed")
	return true
}

// persistMedia copies provider-hosted media into durable storage and records
// the asset.
func (o *Orchestrator) persistMedia(ctx context.Context, job *domain.GenerationJob, kind domain.AssetKind, srcURL string, data []byte, mime string, width, height int) (*domain.Asset, error) {
	if len(data) == 0 {
		var contentType string
		var err error
		data, contentType, err = o.download.Download(ctx, srcURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
		}
		if mime == "" {
			mime = contentType
		}
	}
	key := fmt.Sprintf("generated/%ss/%s/%s%s", kind, job.ID, kind, extensionForMime(mime))
	publicURL, err := o.store.Upload(ctx, key, data, mime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	asset := &domain.Asset{
		ID:       uuid.NewString(),
		UserID:   job.UserID,
		JobID:    job.ID,
		Kind:     kind,
		URL:      publicURL,
		Mime:     mime,
		Bytes:    int64(len(data)),
		Width:    width,
		Height:   height,
		Provider: o.providerName,
	}
	if err := o.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return asset, nil
}

func (o *Orchestrator) publishUpdate(jobID string, status domain.JobStatus, message string, progress int) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(jobID, stream.Event{
		Type:     stream.EventWorkflowUpdate,
		JobID:    jobID,
		Status:   string(status),
		Message:  message,
		Progress: progress,
	})
}

func (o *Orchestrator) publishTerminal(jobID string, status domain.JobStatus, event stream.Event) {
	if o.hub == nil {
		return
	}
	event.JobID = jobID
	event.Status = string(status)
	o.hub.Publish(jobID, event)
	o.hub.CloseJob(jobID)
}

func extensionForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

// IsBenignConflict reports whether err is the benign lost-the-race outcome.
func IsBenignConflict(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
