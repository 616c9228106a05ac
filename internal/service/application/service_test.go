package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	model "github.com/scaipass/ai-pass/backend/internal/model/application"
	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
	"github.com/scaipass/ai-pass/backend/internal/service/application"
	"github.com/scaipass/ai-pass/backend/internal/store"
	"github.com/scaipass/ai-pass/backend/internal/store/memory"
)

func newService(t *testing.T) *application.Service {
	t.Helper()
	feed := live.NewMemoryFeed()
	t.Cleanup(func() { _ = feed.Close() })
	st := store.WithFeed(memory.New(), feed, logger.NewNop())
	return application.NewService(st, feed, logger.NewNop())
}

func validForm() application.Form {
	return application.Form{
		UserName:       "Kim",
		Email:          "kim@example.com",
		Department:     "Engineering",
		TasksCompleted: 10,
		HoursUsed:      5,
	}
}

func TestSubmit(t *testing.T) {
	svc := newService(t)

	app, err := svc.Submit(context.Background(), "user-1", validForm())
	require.NoError(t, err)
	assert.Equal(t, "user-1", app.UserID)
	assert.Equal(t, "L1", app.CurrentLevel)
	assert.Equal(t, "L2", app.RequestedLevel)
	assert.Equal(t, 60, app.TimeSaved)
	assert.Equal(t, model.StatusPending, app.Status)
	assert.Nil(t, app.ReviewedAt)
}

func TestSubmitValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "", validForm())
	assert.ErrorIs(t, err, auth.ErrAuthRequired)

	form := validForm()
	form.UserName = " "
	_, err = svc.Submit(ctx, "user-1", form)
	assert.ErrorIs(t, err, application.ErrInvalidForm)

	form = validForm()
	form.HoursUsed = -1
	_, err = svc.Submit(ctx, "user-1", form)
	assert.ErrorIs(t, err, application.ErrInvalidForm)

	form = validForm()
	form.CurrentLevel = "L3"
	_, err = svc.Submit(ctx, "user-1", form)
	assert.ErrorIs(t, err, application.ErrInvalidForm)
}

func TestListMineAndList(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "user-1", validForm())
	require.NoError(t, err)
	other, err := svc.Submit(ctx, "user-2", validForm())
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = svc.Review(ctx, "admin-1", other.ID, application.Approve, "")
	require.NoError(t, err)

	pending, err := svc.List(ctx, model.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "user-1", pending[0].UserID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.List(ctx, "archived")
	assert.ErrorIs(t, err, application.ErrInvalidForm)
}

func TestReview(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	app, _ := svc.Submit(ctx, "user-1", validForm())

	_, err := svc.Review(ctx, "admin-1", app.ID, "maybe", "")
	assert.ErrorIs(t, err, application.ErrInvalidDecision)

	_, err = svc.Review(ctx, "admin-1", "missing", application.Approve, "")
	assert.ErrorIs(t, err, application.ErrApplicationNotFound)

	reviewed, err := svc.Review(ctx, "admin-1", app.ID, application.Reject, " not enough usage ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, reviewed.Status)
	assert.Equal(t, "admin-1", reviewed.ReviewerID)
	assert.Equal(t, "not enough usage", reviewed.ReviewNote)
	require.NotNil(t, reviewed.ReviewedAt)

	_, err = svc.Review(ctx, "admin-1", app.ID, application.Approve, "")
	assert.ErrorIs(t, err, application.ErrAlreadyReviewed)
}

// readBarrier holds every GetApplication until all expected readers have
// loaded the application, so their writes race on the same pending state.
type readBarrier struct {
	store.ApplicationStore
	readers sync.WaitGroup
}

func (b *readBarrier) GetApplication(ctx context.Context, id string) (model.Application, error) {
	app, err := b.ApplicationStore.GetApplication(ctx, id)
	b.readers.Done()
	b.readers.Wait()
	return app, err
}

func TestConcurrentReviewsDecideOnce(t *testing.T) {
	feed := live.NewMemoryFeed()
	t.Cleanup(func() { _ = feed.Close() })
	backing := store.WithFeed(memory.New(), feed, logger.NewNop())
	ctx := context.Background()

	app, err := application.NewService(backing, feed, logger.NewNop()).Submit(ctx, "user-1", validForm())
	require.NoError(t, err)

	gated := &readBarrier{ApplicationStore: backing}
	gated.readers.Add(2)
	svc := application.NewService(gated, feed, logger.NewNop())

	decisions := []struct {
		reviewer string
		decision application.Decision
		status   model.Status
	}{
		{"admin-a", application.Approve, model.StatusApproved},
		{"admin-b", application.Reject, model.StatusRejected},
	}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, reviewer string, decision application.Decision) {
			defer wg.Done()
			_, errs[i] = svc.Review(ctx, reviewer, app.ID, decision, "")
		}(i, d.reviewer, d.decision)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			assert.Equal(t, -1, winner, "both reviews succeeded")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, application.ErrAlreadyReviewed)
	}
	require.NotEqual(t, -1, winner, "no review succeeded")

	final, err := backing.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, decisions[winner].status, final.Status)
	assert.Equal(t, decisions[winner].reviewer, final.ReviewerID)
}

func TestWatchQueue(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	sub, err := svc.Watch(ctx, model.StatusPending)
	require.NoError(t, err)
	defer sub.Close()

	next := func() []model.Application {
		select {
		case snap := <-sub.Updates():
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for the review queue")
			return nil
		}
	}

	assert.Empty(t, next())

	app, err := svc.Submit(ctx, "user-1", validForm())
	require.NoError(t, err)
	queue := next()
	require.Len(t, queue, 1)
	assert.Equal(t, app.ID, queue[0].ID)

	_, err = svc.Review(ctx, "admin-1", app.ID, application.Approve, "")
	require.NoError(t, err)
	assert.Empty(t, next())
}
