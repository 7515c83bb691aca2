package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

// memJournal records writes in memory and can be told to fail.
type memJournal struct {
	mu         sync.Mutex
	failWrites bool

	keystrokeRows []keystrokeRow
	sessionRows   []sessionRow
}

type keystrokeRow struct {
	TestSectionID string
	SequenceID    int
}

type sessionRow struct {
	ParticipantID   string
	TestSectionID   string
	SentenceCount   int
	TotalKeystrokes int
	AverageWPM      float64
}

func (j *memJournal) WriteKeystrokes(batch *models.KeystrokeBatch, startID int, sessionTimestamp string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failWrites {
		return errors.New("disk full")
	}
	for i := range batch.Keystrokes {
		j.keystrokeRows = append(j.keystrokeRows, keystrokeRow{
			TestSectionID: batch.TestSectionID,
			SequenceID:    startID + i,
		})
	}
	return nil
}

func (j *memJournal) WriteSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failWrites {
		return errors.New("disk full")
	}
	j.sessionRows = append(j.sessionRows, sessionRow{
		ParticipantID:   participantID,
		TestSectionID:   testSectionID,
		SentenceCount:   sentenceCount,
		TotalKeystrokes: totalKeystrokes,
		AverageWPM:      averageWPM,
	})
	return nil
}

// memSink records enqueued upload intents.
type memSink struct {
	mu         sync.Mutex
	keystrokes []models.KeystrokeBatch
	sessions   []sessionRow
}

func (s *memSink) EnqueueKeystrokes(batch models.KeystrokeBatch, sessionTimestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keystrokes = append(s.keystrokes, batch)
}

func (s *memSink) EnqueueSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessionRow{
		ParticipantID:   participantID,
		TestSectionID:   testSectionID,
		SentenceCount:   sentenceCount,
		TotalKeystrokes: totalKeystrokes,
		AverageWPM:      averageWPM,
	})
}

func newTestRegistry(j Journal, sink Sink) *Registry {
	r := NewRegistry(zap.NewNop(), j, sink)
	r.now = func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return r
}

func scenarioBatch(participantID, testSectionID string) *models.KeystrokeBatch {
	return &models.KeystrokeBatch{
		ParticipantID: participantID,
		TestSectionID: testSectionID,
		Sentence:      "The cat sat.",
		UserInput:     "The",
		Keystrokes: []models.KeystrokeEvent{
			{PressTime: 0, ReleaseTime: 50, Keycode: 84, Letter: "T"},
			{PressTime: 100, ReleaseTime: 150, Keycode: 72, Letter: "h"},
			{PressTime: 200, ReleaseTime: 260, Keycode: 69, Letter: "e"},
		},
	}
}

func TestFullSessionLifecycle(t *testing.T) {
	j := &memJournal{}
	sink := &memSink{}
	r := newTestRegistry(j, sink)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	assert.Equal(t, "janedoe_20240101_000000", start.ParticipantID)
	assert.Equal(t, "20240101_000000", start.SessionTimestamp)
	assert.NotEmpty(t, start.TestSectionID)

	sectionID, err := r.OpenTestSection(start.ParticipantID, "The cat sat.", "u1")
	require.NoError(t, err)

	batch := scenarioBatch(start.ParticipantID, sectionID)
	ingest, err := r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, ingest.Count)
	assert.Equal(t, 3, ingest.NextKeystrokeID)
	require.Len(t, j.keystrokeRows, 3)
	for i, row := range j.keystrokeRows {
		assert.Equal(t, i, row.SequenceID)
	}

	sentence, err := r.CompleteSentence(batch, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, sentence.KeystrokeCount)
	// 3 chars over 260ms: (3/5) / (260/60000)
	assert.InDelta(t, 138.46, sentence.SentenceWPM, 0.01)

	end, err := r.EndTest(start.ParticipantID, []string{sectionID}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, end.SentenceCount)
	assert.Equal(t, 3, end.TotalKeystrokes)
	assert.InDelta(t, 138.46, end.AverageWPM, 0.01)

	require.Len(t, j.sessionRows, 1)
	summary := j.sessionRows[0]
	assert.Equal(t, start.ParticipantID, summary.ParticipantID)
	assert.Equal(t, sectionID, summary.TestSectionID)
	assert.Equal(t, 1, summary.SentenceCount)
	assert.Equal(t, 3, summary.TotalKeystrokes)
	assert.InDelta(t, 138.46, summary.AverageWPM, 0.01)

	// The sink received both the combined batch and the summary.
	require.Len(t, sink.keystrokes, 1)
	assert.Len(t, sink.keystrokes[0].Keystrokes, 3)
	require.Len(t, sink.sessions, 1)

	// The sitting is gone: further operations are unauthorized.
	_, err = r.IngestKeystrokes(batch, "u1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOwnershipGuard(t *testing.T) {
	r := newTestRegistry(&memJournal{}, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	batch := scenarioBatch(start.ParticipantID, start.TestSectionID)

	_, err := r.OpenTestSection(start.ParticipantID, "x", "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.IngestKeystrokes(batch, "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.CompleteSentence(batch, "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.EndTest(start.ParticipantID, nil, "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Unknown participants fail closed too.
	_, err = r.OpenTestSection("nobody_20240101_000000", "x", "u1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIngestUnknownSectionStartsAtZero(t *testing.T) {
	j := &memJournal{}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	batch := scenarioBatch(start.ParticipantID, "section-from-before-restart")

	ingest, err := r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, ingest.NextKeystrokeID)
	assert.Equal(t, 0, j.keystrokeRows[0].SequenceID)
}

func TestJournalFailureLeavesStateUntouched(t *testing.T) {
	j := &memJournal{failWrites: true}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	batch := scenarioBatch(start.ParticipantID, start.TestSectionID)

	_, err := r.IngestKeystrokes(batch, "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	// The failed write advanced nothing: a retry starts at sequence zero.
	j.failWrites = false
	ingest, err := r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, ingest.NextKeystrokeID)
	assert.Equal(t, 0, j.keystrokeRows[0].SequenceID)
}

func TestUnknownSectionRegisteredOnlyAfterJournalSuccess(t *testing.T) {
	j := &memJournal{failWrites: true}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	batch := scenarioBatch(start.ParticipantID, "section-from-before-restart")

	_, err := r.IngestKeystrokes(batch, "u1")
	require.Error(t, err)

	// The failed write left the participant's section list alone.
	r.mu.Lock()
	sections := append([]string(nil), r.participants[start.ParticipantID].SectionIDs...)
	r.mu.Unlock()
	assert.Equal(t, []string{start.TestSectionID}, sections)

	// A successful retry registers the section exactly once.
	j.failWrites = false
	_, err = r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)
	_, err = r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)

	r.mu.Lock()
	sections = append([]string(nil), r.participants[start.ParticipantID].SectionIDs...)
	r.mu.Unlock()
	assert.Equal(t, []string{start.TestSectionID, "section-from-before-restart"}, sections)
}

func TestJournalFailureBlocksEndTestCleanup(t *testing.T) {
	j := &memJournal{}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)

	j.failWrites = true
	_, err := r.EndTest(start.ParticipantID, []string{start.TestSectionID}, "u1")
	require.Error(t, err)

	// The sitting survives a failed summary write and the call can be retried.
	j.failWrites = false
	_, err = r.EndTest(start.ParticipantID, []string{start.TestSectionID}, "u1")
	require.NoError(t, err)
}

func TestEndTestRemovesAllState(t *testing.T) {
	j := &memJournal{}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	sectionID, err := r.OpenTestSection(start.ParticipantID, "abc", "u1")
	require.NoError(t, err)

	batch := scenarioBatch(start.ParticipantID, sectionID)
	_, err = r.IngestKeystrokes(batch, "u1")
	require.NoError(t, err)

	_, err = r.EndTest(start.ParticipantID, []string{start.TestSectionID, sectionID}, "u1")
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.participants)
	assert.Empty(t, r.sections)
	assert.Empty(t, r.activeByUser)
	assert.Empty(t, r.pendingUpload)
}

func TestEndTestWithoutSentencesFallsBackToSectionCount(t *testing.T) {
	j := &memJournal{}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)

	end, err := r.EndTest(start.ParticipantID, []string{start.TestSectionID, "s2", "s3"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, end.SentenceCount)
	assert.Equal(t, 0, end.TotalKeystrokes)
	assert.Equal(t, 0.0, end.AverageWPM)
}

func TestNegativeElapsedContributesZeroTime(t *testing.T) {
	r := newTestRegistry(&memJournal{}, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)
	batch := &models.KeystrokeBatch{
		ParticipantID: start.ParticipantID,
		TestSectionID: start.TestSectionID,
		Sentence:      "x",
		Keystrokes: []models.KeystrokeEvent{
			{PressTime: 500, ReleaseTime: 100, Letter: "x"},
		},
	}

	_, err := r.CompleteSentence(batch, "u1")
	require.NoError(t, err)

	r.mu.Lock()
	m := r.participants[start.ParticipantID].Metrics
	r.mu.Unlock()
	assert.Equal(t, int64(0), m.TotalTimeMs)
	assert.Equal(t, 1, m.SentenceCount)
}

func TestConcurrentIngestsDisjointSequenceRanges(t *testing.T) {
	j := &memJournal{}
	r := newTestRegistry(j, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 10)

	const goroutines = 10
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch := &models.KeystrokeBatch{
				ParticipantID: start.ParticipantID,
				TestSectionID: start.TestSectionID,
				Sentence:      "abc",
				Keystrokes: []models.KeystrokeEvent{
					{PressTime: int64(i), ReleaseTime: int64(i + 10), Letter: "a"},
					{PressTime: int64(i + 1), ReleaseTime: int64(i + 11), Letter: "b"},
				},
			}
			_, err := r.IngestKeystrokes(batch, "u1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every sequence id 0..2*goroutines-1 appears exactly once.
	seen := make(map[int]int)
	for _, row := range j.keystrokeRows {
		seen[row.SequenceID]++
	}
	require.Len(t, seen, goroutines*2)
	for id, count := range seen {
		assert.Equal(t, 1, count, fmt.Sprintf("sequence id %d", id))
	}

	stats, err := r.SectionStats(start.TestSectionID)
	require.NoError(t, err)
	assert.Equal(t, goroutines*2, stats.NextKeystrokeID)
	assert.Equal(t, goroutines*2, stats.TotalKeystrokes)
}

func TestSectionStats(t *testing.T) {
	r := newTestRegistry(&memJournal{}, nil)

	start := r.StartSession("u1", "jane.doe@example.com", 15)
	stats, err := r.SectionStats(start.TestSectionID)
	require.NoError(t, err)
	assert.Equal(t, start.ParticipantID, stats.ParticipantID)
	assert.Equal(t, 15, stats.QuestionCount)
	assert.Equal(t, 0, stats.NextKeystrokeID)

	_, err = r.SectionStats("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartSessionOverwritesStaleActivePointer(t *testing.T) {
	r := newTestRegistry(&memJournal{}, nil)

	first := r.StartSession("u1", "jane.doe@example.com", 10)
	second := r.StartSession("u1", "jane.doe@example.com", 10)

	r.mu.Lock()
	active := r.activeByUser["u1"]
	r.mu.Unlock()
	assert.Equal(t, second.ParticipantID, active)
	// Same derived id at the same wall-clock second; the pointer tracks the
	// latest sitting.
	assert.Equal(t, first.ParticipantID, second.ParticipantID)
}
