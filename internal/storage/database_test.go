package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/realtime"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.ChangeEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Table+":"+string(ev.Op))
	}
	return out
}

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "hash"}
	require.NoError(t, db.InsertUser(context.Background(), u))
	return u
}

func seedDocument(t *testing.T, db *DB, userID, title string, created time.Time) *domain.Document {
	t.Helper()
	d := &domain.Document{UserID: userID, Title: title, FilePath: userID + "/" + title, FileType: "application/pdf", FileSize: 100, CreatedAt: created}
	require.NoError(t, db.InsertDocument(context.Background(), d))
	return d
}

func seedOutline(t *testing.T, db *DB, documentID string, concepts ...string) []domain.Concept {
	t.Helper()
	topic := domain.Topic{Name: "Basics"}
	for _, name := range concepts {
		topic.Concepts = append(topic.Concepts, domain.Concept{Name: name, Explanation: name + " explained"})
	}
	topics := []domain.Topic{topic}
	require.NoError(t, db.ReplaceOutline(context.Background(), documentID, topics))
	return topics[0].Concepts
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	u := seedUser(t, db, "ada@example.com")
	err := db.InsertUser(ctx, &domain.User{Email: "ada@example.com", PasswordHash: "x"})
	assert.True(t, errors.Is(err, ErrConflict))

	found, err := db.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)
	assert.False(t, found.EmailVerified)

	require.NoError(t, db.UpdateUserVerification(ctx, u.ID, true, ""))
	found, err = db.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, found.EmailVerified)

	missing, err := db.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentsAreScopedToTheirOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")

	older := seedDocument(t, db, alice.ID, "older.pdf", testNow.Add(-time.Hour))
	newer := seedDocument(t, db, alice.ID, "newer.pdf", testNow)
	seedDocument(t, db, bob.ID, "bob.pdf", testNow)

	docs, err := db.ListDocuments(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
	assert.Equal(t, older.ID, docs[1].ID)

	got, err := db.GetDocument(ctx, bob.ID, older.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err := db.DeleteDocument(ctx, bob.ID, older.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	stats, err := db.StorageStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageStats{UsedSpace: 200, FileCount: 2}, stats)
}

func TestUpdateDocumentStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	pub := &recordingPublisher{}
	db.SetPublisher(pub)

	u := seedUser(t, db, "a@example.com")
	d := seedDocument(t, db, u.ID, "notes.pdf", testNow.Add(-time.Hour))

	ok, err := db.UpdateDocumentStatus(ctx, d.ID, domain.StatusFailed, "Failed to start processing: boom")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.FindDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "Failed to start processing: boom", got.ErrorMessage)
	assert.Equal(t, testNow, got.UpdatedAt)

	ok, err = db.UpdateDocumentStatus(ctx, "missing", domain.StatusCompleted, "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"documents:INSERT", "documents:UPDATE"}, pub.tables())
	assert.Equal(t, u.ID, pub.events[1].Column("user_id"))
}

func TestContentHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "a@example.com")

	require.NoError(t, db.InsertDocument(ctx, &domain.Document{UserID: u.ID, Title: "a.txt", FilePath: "p", FileType: "text/plain", ContentHash: "abc"}))

	exists, err := db.DocumentHashExists(ctx, u.ID, "abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.DocumentHashExists(ctx, u.ID, "def")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOutlineAndCascade(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "a@example.com")
	d := seedDocument(t, db, u.ID, "go.pdf", testNow)
	concepts := seedOutline(t, db, d.ID, "Goroutines", "Channels")

	topics, err := db.ListTopics(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Len(t, topics[0].Concepts, 2)
	assert.Equal(t, "Goroutines", topics[0].Concepts[0].Name)

	c, err := db.GetConcept(ctx, u.ID, concepts[1].ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "go.pdf", c.DocumentTitle)

	deleted, err := db.DeleteDocument(ctx, u.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	topics, err = db.ListTopics(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, topics)
	c, err = db.GetConcept(ctx, u.ID, concepts[1].ID)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMastery(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "a@example.com")
	d := seedDocument(t, db, u.ID, "go.pdf", testNow)
	concepts := seedOutline(t, db, d.ID, "A", "B", "C")

	err := db.SaveMastery(ctx, domain.ConceptMastery{UserID: u.ID, ConceptID: concepts[0].ID, Status: domain.MasteryMastered})
	assert.ErrorIs(t, err, domain.ErrMasteredWithoutReview)

	dueSoon := testNow.Add(-2 * time.Hour)
	dueLater := testNow.Add(-time.Hour)
	future := testNow.Add(24 * time.Hour)
	require.NoError(t, db.SaveMastery(ctx, domain.ConceptMastery{UserID: u.ID, ConceptID: concepts[0].ID, Status: domain.MasteryMastered, CorrectCount: 3, NextReviewAt: &dueLater}))
	require.NoError(t, db.SaveMastery(ctx, domain.ConceptMastery{UserID: u.ID, ConceptID: concepts[1].ID, Status: domain.MasteryMastered, CorrectCount: 3, NextReviewAt: &dueSoon}))
	require.NoError(t, db.SaveMastery(ctx, domain.ConceptMastery{UserID: u.ID, ConceptID: concepts[2].ID, Status: domain.MasteryInProgress, CorrectCount: 1}))

	got, err := db.GetMastery(ctx, u.ID, concepts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dueLater, *got.NextReviewAt)

	reviews, err := db.ListReviewSchedule(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, concepts[1].ID, reviews[0].ConceptID)
	assert.Equal(t, dueSoon, reviews[0].DueAt)
	assert.Equal(t, "go.pdf", reviews[0].DocumentTitle)

	inProgress, err := db.ListInProgress(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, concepts[2].ID, inProgress[0].ConceptID)

	counts, err := db.CountConcepts(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, ConceptCounts{Total: 3, Mastered: 2}, counts[d.ID])

	// Pushing one review into the future moves it to the end of the schedule.
	require.NoError(t, db.SaveMastery(ctx, domain.ConceptMastery{UserID: u.ID, ConceptID: concepts[1].ID, Status: domain.MasteryMastered, ReviewCount: 1, NextReviewAt: &future}))
	reviews, err = db.ListReviewSchedule(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, concepts[0].ID, reviews[0].ConceptID)
	assert.Equal(t, future, reviews[1].DueAt)
	assert.Equal(t, 1, reviews[1].ReviewCount)

	byConcept, err := db.MasteryForDocument(ctx, u.ID, d.ID)
	require.NoError(t, err)
	assert.Len(t, byConcept, 3)
	assert.Equal(t, 1, byConcept[concepts[1].ID].ReviewCount)
}

func seedQuiz(t *testing.T, db *DB, userID, documentID, conceptID string) *domain.Quiz {
	t.Helper()
	q := &domain.Quiz{
		UserID:           userID,
		DocumentID:       documentID,
		Title:            "Go quiz",
		GenerationStatus: domain.GenerationCompleted,
		Questions: []domain.Question{
			{
				Text: "Second", OrderIndex: 1, ConceptID: conceptID,
				Options: []domain.Option{
					{Index: 1, Text: "b", IsCorrect: true, Explanation: "because b"},
					{Index: 0, Text: "a", Explanation: "not a"},
				},
			},
			{
				Text: "First", OrderIndex: 0, Hint: "think",
				Options: []domain.Option{
					{Index: 0, Text: "x", IsCorrect: true},
					{Index: 1, Text: "y"},
				},
			},
		},
	}
	require.NoError(t, db.InsertQuiz(context.Background(), q))
	return q
}

func TestQuizzes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "a@example.com")
	other := seedUser(t, db, "b@example.com")
	d := seedDocument(t, db, u.ID, "go.pdf", testNow)
	concepts := seedOutline(t, db, d.ID, "A")
	q := seedQuiz(t, db, u.ID, d.ID, concepts[0].ID)

	got, err := db.GetQuiz(ctx, u.ID, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "First", got.Questions[0].Text)
	assert.Equal(t, "think", got.Questions[0].Hint)
	assert.Equal(t, 0, got.Questions[1].Options[0].Index)
	assert.Equal(t, 1, got.Questions[1].CorrectIndex())

	hidden, err := db.GetQuiz(ctx, other.ID, q.ID)
	require.NoError(t, err)
	assert.Nil(t, hidden)

	list, err := db.ListQuizzes(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].QuestionCount)
	assert.Equal(t, "go.pdf", list[0].DocumentTitle)

	forDoc, err := db.QuizForDocument(ctx, u.ID, d.ID)
	require.NoError(t, err)
	require.NotNil(t, forDoc)
	assert.Equal(t, q.ID, forDoc.ID)

	byConcept, err := db.QuestionsForConcept(ctx, u.ID, concepts[0].ID)
	require.NoError(t, err)
	require.Len(t, byConcept, 1)
	assert.Equal(t, "Second", byConcept[0].Text)

	counts, err := db.QuestionCounts(ctx, u.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{concepts[0].ID: 1}, counts)

	ok, err := db.UpdateQuizStatus(ctx, q.ID, domain.GenerationFailed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttempts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "a@example.com")
	d := seedDocument(t, db, u.ID, "go.pdf", testNow)
	q := seedQuiz(t, db, u.ID, d.ID, "")

	first := &domain.QuizAttempt{UserID: u.ID, QuizID: q.ID, Score: 1, TotalQuestions: 2, CompletedAt: testNow.Add(-time.Hour),
		Answers: []domain.Answer{{QuestionID: q.Questions[0].ID, SelectedOption: 1}}}
	second := &domain.QuizAttempt{UserID: u.ID, QuizID: q.ID, Score: 2, TotalQuestions: 2, CompletedAt: testNow}
	require.NoError(t, db.InsertQuizAttempt(ctx, first))
	require.NoError(t, db.InsertQuizAttempt(ctx, second))

	attempts, err := db.ListQuizAttempts(ctx, u.ID, q.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, second.ID, attempts[0].ID)
	assert.Equal(t, first.Answers, attempts[1].Answers)

	require.NoError(t, db.InsertQuestionAttempt(ctx, &domain.QuestionAttempt{
		UserID: u.ID, QuestionID: q.Questions[0].ID, SessionID: "s1", SelectedOption: 1, IsCorrect: true,
	}))
	n, err := db.CountQuestionAttempts(ctx, u.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
