package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change event")
	}
	return ChangeEvent{}
}

func assertNoEvent(t *testing.T, ch <-chan ChangeEvent) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func docEvent(userID, docID string) ChangeEvent {
	return ChangeEvent{
		Table:   TableDocuments,
		Op:      OpUpdate,
		Columns: map[string]string{"id": docID, "user_id": userID},
	}
}

func TestHubFiltersByColumn(t *testing.T) {
	hub := NewHub(nil, nil)
	mine, cancelMine := hub.Subscribe(Topic{Table: TableDocuments, Filter: Filter{Column: "user_id", Value: "u1"}})
	defer cancelMine()
	quizzes, cancelQuizzes := hub.Subscribe(Topic{Table: TableQuizzes})
	defer cancelQuizzes()

	hub.Publish(context.Background(), docEvent("u2", "d2"))
	hub.Publish(context.Background(), docEvent("u1", "d1"))

	got := recvEvent(t, mine)
	assert.Equal(t, "d1", got.Column("id"))
	assertNoEvent(t, mine)
	assertNoEvent(t, quizzes)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(nil, nil)
	ch, cancel := hub.Subscribe(Topic{Table: TableDocuments})
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(context.Background(), docEvent("u1", "d1"))
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(nil, nil)
	ch, cancel := hub.Subscribe(Topic{Table: TableDocuments})
	defer cancel()

	for i := 0; i < DefaultBuffer+5; i++ {
		hub.Publish(context.Background(), docEvent("u1", "d1"))
	}
	assert.Len(t, ch, DefaultBuffer)
}

type loopbackBus struct {
	onEvent func(ChangeEvent)
}

func (b *loopbackBus) Publish(_ context.Context, ev ChangeEvent) error {
	b.onEvent(ev)
	return nil
}

func (b *loopbackBus) StartForwarder(_ context.Context, onEvent func(ChangeEvent)) error {
	b.onEvent = onEvent
	return nil
}

func (b *loopbackBus) Close() error { return nil }

func TestHubPublishesThroughBus(t *testing.T) {
	hub := NewHub(nil, &loopbackBus{})
	require.NoError(t, hub.Start(context.Background()))

	ch, cancel := hub.Subscribe(Topic{Table: TableDocuments})
	defer cancel()

	hub.Publish(context.Background(), docEvent("u1", "d1"))
	assert.Equal(t, "u1", recvEvent(t, ch).Column("user_id"))
}

func TestServeSSE(t *testing.T) {
	events := make(chan ChangeEvent, 1)
	events <- docEvent("u1", "d1")
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime", nil)
	ServeSSE(rec, req, events)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	assert.Contains(t, lines, "event: documents")
	assert.Contains(t, rec.Body.String(), `"user_id":"u1"`)
}
