package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studyloop/internal/realtime"
)

func TestRefreshInvalidatesTheOwnersEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewMemory(0)
	hub := realtime.NewHub(nil, nil)

	done := make(chan struct{})
	go func() {
		Refresh(ctx, hub, c, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	for _, k := range append(UserKeys("u1", ResourceDashboard, ResourceQuizzes, ResourceDocuments), UserKeys("u2", ResourceDashboard)...) {
		require.NoError(t, c.Set(ctx, k, []byte(`{}`), 0))
	}
	present := func(k Key) bool {
		_, ok, err := c.Get(ctx, k)
		require.NoError(t, err)
		return ok
	}

	hub.Publish(ctx, realtime.ChangeEvent{
		Table:   realtime.TableConceptMastery,
		Op:      realtime.OpUpdate,
		Columns: map[string]string{"user_id": "u1", "concept_id": "c1"},
	})
	require.Eventually(t, func() bool {
		return !present(Key{Resource: ResourceDashboard, ScopeID: "u1"})
	}, time.Second, 5*time.Millisecond)
	assert.True(t, present(Key{Resource: ResourceQuizzes, ScopeID: "u1"}), "mastery changes leave quizzes alone")
	assert.True(t, present(Key{Resource: ResourceDashboard, ScopeID: "u2"}))

	hub.Publish(ctx, realtime.ChangeEvent{
		Table:   realtime.TableDocuments,
		Op:      realtime.OpDelete,
		Columns: map[string]string{"id": "d1", "user_id": "u1"},
	})
	require.Eventually(t, func() bool {
		return !present(Key{Resource: ResourceDocuments, ScopeID: "u1"}) && !present(Key{Resource: ResourceQuizzes, ScopeID: "u1"})
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
	assert.Equal(t, 0, hub.Subscribers())
}
