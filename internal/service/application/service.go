// Package application handles tier-upgrade requests and their review.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/store"
)

var (
	ErrInvalidForm         = errors.New("application form is incomplete")
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyReviewed     = errors.New("application has already been reviewed")
	ErrInvalidDecision     = errors.New("decision must be approve or reject")
)

const defaultLevel = "L1"

// Form is what a user submits.
type Form struct {
	UserName       string `json:"userName"`
	Email          string `json:"email"`
	Department     string `json:"department"`
	CurrentLevel   string `json:"currentLevel"`
	RequestedLevel string `json:"requestedLevel"`
	TasksCompleted int    `json:"tasksCompleted"`
	HoursUsed      int    `json:"hoursUsed"`
}

// Decision is an administrator's verdict.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

type Service struct {
	store store.ApplicationStore
	feed  live.Feed
	log   logger.ILogger
	now   func() time.Time
}

func NewService(st store.ApplicationStore, feed live.Feed, log logger.ILogger) *Service {
	return &Service{
		store: st,
		feed:  feed,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Submit files a pending application for ownerID.
func (s *Service) Submit(ctx context.Context, ownerID string, form Form) (application.Application, error) {
	if ownerID == "" {
		return application.Application{}, auth.ErrAuthRequired
	}
	if strings.TrimSpace(form.UserName) == "" || strings.TrimSpace(form.Department) == "" {
		return application.Application{}, fmt.Errorf("%w: userName and department are required", ErrInvalidForm)
	}
	if form.TasksCompleted < 0 || form.HoursUsed < 0 {
		return application.Application{}, fmt.Errorf("%w: counts must not be negative", ErrInvalidForm)
	}

	current := strings.TrimSpace(form.CurrentLevel)
	if current == "" {
		current = defaultLevel
	}
	requested := strings.TrimSpace(form.RequestedLevel)
	if requested == "" {
		requested = application.NextLevel(current)
	}
	if requested == "" {
		return application.Application{}, fmt.Errorf("%w: no level above %s", ErrInvalidForm, current)
	}

	created, err := s.store.CreateApplication(ctx, application.Application{
		UserID:         ownerID,
		UserName:       strings.TrimSpace(form.UserName),
		Email:          strings.TrimSpace(form.Email),
		Department:     strings.TrimSpace(form.Department),
		CurrentLevel:   current,
		RequestedLevel: requested,
		TasksCompleted: form.TasksCompleted,
		HoursUsed:      form.HoursUsed,
		TimeSaved:      application.EstimateTimeSaved(form.TasksCompleted, form.HoursUsed),
		Status:         application.StatusPending,
	})
	if err != nil {
		return application.Application{}, fmt.Errorf("create application: %w", err)
	}

	s.log.Info("Application", "application submitted", map[string]interface{}{
		"application_id":  created.ID,
		"user_id":         ownerID,
		"requested_level": requested,
	})
	return created, nil
}

// ListMine returns the applications filed by ownerID, oldest first.
func (s *Service) ListMine(ctx context.Context, ownerID string) ([]application.Application, error) {
	if ownerID == "" {
		return nil, auth.ErrAuthRequired
	}
	return s.store.ListApplications(ctx, store.ApplicationFilter{UserID: ownerID})
}

// List returns every application, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, status application.Status) ([]application.Application, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidForm, status)
	}
	return s.store.ListApplications(ctx, store.ApplicationFilter{Status: status})
}

// Watch is the live form of List, used by the review queue.
func (s *Service) Watch(ctx context.Context, status application.Status) (*live.Subscription[[]application.Application], error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidForm, status)
	}
	return live.Watch(ctx, s.feed, store.ApplicationsTopic, func(ctx context.Context) ([]application.Application, error) {
		return s.List(ctx, status)
	})
}

// Review records the verdict of reviewerID. An application is reviewed once.
func (s *Service) Review(ctx context.Context, reviewerID, id string, decision Decision, note string) (application.Application, error) {
	if reviewerID == "" {
		return application.Application{}, auth.ErrAuthRequired
	}

	var status application.Status
	switch decision {
	case Approve:
		status = application.StatusApproved
	case Reject:
		status = application.StatusRejected
	default:
		return application.Application{}, ErrInvalidDecision
	}

	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return application.Application{}, ErrApplicationNotFound
		}
		return application.Application{}, err
	}
	if app.Status != application.StatusPending {
		return application.Application{}, ErrAlreadyReviewed
	}

	reviewedAt := s.now()
	app.Status = status
	app.ReviewerID = reviewerID
	app.ReviewNote = strings.TrimSpace(note)
	app.ReviewedAt = &reviewedAt

	updated, err := s.store.UpdateApplication(ctx, app)
	switch {
	case errors.Is(err, store.ErrNotPending):
		return application.Application{}, ErrAlreadyReviewed
	case errors.Is(err, store.ErrNotFound):
		return application.Application{}, ErrApplicationNotFound
	case err != nil:
		return application.Application{}, fmt.Errorf("update application: %w", err)
	}

	s.log.Info("Application", "application reviewed", map[string]interface{}{
		"application_id": id,
		"reviewer_id":    reviewerID,
		"status":         string(status),
	})
	return updated, nil
}
