package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mediagen/internal/domain"
)

func TestEstimateProgress(t *testing.T) {
	now := time.Now()
	started := now.Add(-15 * time.Second)

	tests := []struct {
		name       string
		job        *domain.GenerationJob
		percent    int
		etaSeconds int
	}{
		{"nil job", nil, 0, 0},
		{"queued", &domain.GenerationJob{Status: domain.JobStatusQueued}, 0, 0},
		{"failed", &domain.GenerationJob{Status: domain.JobStatusFailed}, 0, 0},
		{"done", &domain.GenerationJob{Status: domain.JobStatusVideoReady}, 100, 0},
		{"image ready", &domain.GenerationJob{Status: domain.JobStatusImageReady}, 50, 0},
		{"paused", &domain.GenerationJob{Status: domain.JobStatusPaused}, 50, 0},
		{
			"halfway through image stage",
			&domain.GenerationJob{Status: domain.JobStatusGeneratingImage, StartedAt: &started},
			50, 15,
		},
		{
			"early video stage",
			&domain.GenerationJob{Status: domain.JobStatusGeneratingVideo, StartedAt: &started},
			5, 285,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := EstimateProgress(tt.job, now)
			assert.Equal(t, tt.percent, est.Percent)
			assert.Equal(t, tt.etaSeconds, est.ETASeconds)
		})
	}
}

func TestEstimateProgressSaturates(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	job := &domain.GenerationJob{Status: domain.JobStatusGeneratingVideo, StartedAt: &started}

	est := EstimateProgress(job, time.Now())
	assert.Equal(t, 99, est.Percent)
	assert.Equal(t, 0, est.ETASeconds)
}
