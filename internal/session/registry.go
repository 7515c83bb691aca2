// Package session is the stateful core of the platform: it tracks active
// participants and test sections, authorizes callers against session
// ownership, journals keystroke batches durably, and accumulates the running
// metrics that become the end-of-test summary.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/metrics"
	"github.com/xsuryanshx/cognitive-load/internal/models"
)

var (
	// ErrUnauthorized means the caller does not own the referenced
	// participant, or the participant is unknown. The guard fails closed.
	ErrUnauthorized = errors.New("unauthorized participant")

	// ErrNotFound means the referenced test section is not in memory.
	ErrNotFound = errors.New("test section not found")
)

// Journal is the durable sink every keystroke batch must reach before the
// registry acknowledges it.
type Journal interface {
	WriteKeystrokes(batch *models.KeystrokeBatch, startID int, sessionTimestamp string) error
	WriteSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) error
}

// Sink receives best-effort upload intents for the analytics warehouse.
// Enqueue calls must never block; delivery carries no durability guarantee.
type Sink interface {
	EnqueueKeystrokes(batch models.KeystrokeBatch, sessionTimestamp string)
	EnqueueSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string)
}

// participant is one test-taker's sitting.
type participant struct {
	UserID           string
	SessionTimestamp string
	QuestionCount    int
	SectionIDs       []string
	Metrics          *sessionMetrics
}

// testSection is one sentence-typing exercise, joined to its participant by
// ParticipantID.
type testSection struct {
	ParticipantID   string
	Sentence        string
	NextKeystrokeID int
	TotalKeystrokes int
	SentenceCount   int
}

// sessionMetrics accumulates per-sitting typing totals across sentences.
type sessionMetrics struct {
	TotalKeystrokes int
	TotalChars      int
	TotalTimeMs     int64
	SentenceCount   int
}

// Registry owns all in-memory session state. Every map is guarded by a
// single mutex held for the whole of each operation, journal write included,
// so counter read / journal append / counter advance happens as one unit and
// sequence ranges handed to concurrent batches never overlap.
type Registry struct {
	log     *zap.Logger
	journal Journal
	sink    Sink
	now     func() time.Time

	mu            sync.Mutex
	participants  map[string]*participant
	sections      map[string]*testSection
	activeByUser  map[string]string
	pendingUpload map[string][]models.KeystrokeBatch
}

// NewRegistry creates an empty registry. sink may be nil when no warehouse
// is configured.
func NewRegistry(log *zap.Logger, j Journal, sink Sink) *Registry {
	return &Registry{
		log:           log,
		journal:       j,
		sink:          sink,
		now:           time.Now,
		participants:  make(map[string]*participant),
		sections:      make(map[string]*testSection),
		activeByUser:  make(map[string]string),
		pendingUpload: make(map[string][]models.KeystrokeBatch),
	}
}

// StartResult is returned by StartSession.
type StartResult struct {
	ParticipantID    string
	TestSectionID    string
	SessionTimestamp string
	QuestionCount    int
}

// IngestResult is returned by IngestKeystrokes. NextKeystrokeID lets the
// client detect lost or duplicated batches.
type IngestResult struct {
	Count           int
	NextKeystrokeID int
}

// SentenceResult is returned by CompleteSentence.
type SentenceResult struct {
	KeystrokeCount int
	SentenceWPM    float64
	Rhythm         map[string]metrics.MetricResult
}

// EndResult is returned by EndTest.
type EndResult struct {
	SentenceCount   int
	TotalKeystrokes int
	AverageWPM      float64
}

// Stats is the read-only per-section snapshot served by the stats endpoint.
type Stats struct {
	ParticipantID   string `json:"participant_id"`
	Sentence        string `json:"sentence,omitempty"`
	SentenceCount   int    `json:"sentence_count"`
	TotalKeystrokes int    `json:"total_keystrokes"`
	NextKeystrokeID int    `json:"next_keystroke_id"`
	QuestionCount   int    `json:"question_count,omitempty"`
}

// authorize is the ownership guard: the caller must be the recorded owner of
// the participant. Unknown participants are unauthorized, not "not found",
// so the check fails closed. Callers must hold r.mu.
func (r *Registry) authorize(participantID, callerID string) error {
	p, ok := r.participants[participantID]
	if !ok || p.UserID != callerID {
		return ErrUnauthorized
	}
	return nil
}

// StartSession begins a new sitting for the caller. Any prior active sitting
// pointer for the user is overwritten; there is at most one active sitting
// per user. A first test section is allocated so the client can start
// streaming keystrokes immediately.
func (r *Registry) StartSession(userID, email string, questionCount int) StartResult {
	if questionCount <= 0 {
		questionCount = 10
	}

	participantID, sessionTimestamp := DeriveParticipantID(email, r.now())
	testSectionID := NewTestSectionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[participantID] = &participant{
		UserID:           userID,
		SessionTimestamp: sessionTimestamp,
		QuestionCount:    questionCount,
		SectionIDs:       []string{testSectionID},
	}
	r.activeByUser[userID] = participantID
	r.sections[testSectionID] = &testSection{
		ParticipantID: participantID,
	}

	r.log.Info("Session started",
		zap.String("participant_id", participantID),
		zap.String("test_section_id", testSectionID),
		zap.Int("question_count", questionCount),
	)

	return StartResult{
		ParticipantID:    participantID,
		TestSectionID:    testSectionID,
		SessionTimestamp: sessionTimestamp,
		QuestionCount:    questionCount,
	}
}

// OpenTestSection allocates a new test section for one sentence.
func (r *Registry) OpenTestSection(participantID, sentence, callerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(participantID, callerID); err != nil {
		return "", err
	}

	testSectionID := NewTestSectionID()
	r.sections[testSectionID] = &testSection{
		ParticipantID: participantID,
		Sentence:      sentence,
		SentenceCount: 1,
	}
	p := r.participants[participantID]
	p.SectionIDs = append(p.SectionIDs, testSectionID)

	return testSectionID, nil
}

// IngestKeystrokes journals a batch and advances the section's keystroke
// counter. The journal write happens before any in-memory mutation: if the
// disk write fails the counter is untouched and the whole request can be
// retried safely.
func (r *Registry) IngestKeystrokes(batch *models.KeystrokeBatch, callerID string) (IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(batch.ParticipantID, callerID); err != nil {
		return IngestResult{}, err
	}

	p := r.participants[batch.ParticipantID]
	sec, known := r.sections[batch.TestSectionID]
	if !known {
		// Tolerate sections the registry has never seen (client retries
		// across a restart); the counter simply starts at zero.
		sec = &testSection{
			ParticipantID: batch.ParticipantID,
			Sentence:      batch.Sentence,
			SentenceCount: 1,
		}
	}

	sessionTimestamp := r.sessionTimestampLocked(batch.ParticipantID)

	if err := r.journal.WriteKeystrokes(batch, sec.NextKeystrokeID, sessionTimestamp); err != nil {
		return IngestResult{}, fmt.Errorf("journal write failed: %w", err)
	}

	// The batch is durable; only now may in-memory state change.
	if !known {
		p.SectionIDs = append(p.SectionIDs, batch.TestSectionID)
	}
	r.sections[batch.TestSectionID] = sec
	r.pendingUpload[batch.TestSectionID] = append(r.pendingUpload[batch.TestSectionID], *batch)

	n := len(batch.Keystrokes)
	sec.NextKeystrokeID += n
	sec.TotalKeystrokes += n

	return IngestResult{Count: n, NextKeystrokeID: sec.NextKeystrokeID}, nil
}

// CompleteSentence folds one finished sentence into the sitting's running
// metrics and returns the sentence-level WPM for immediate display. Not
// idempotent: calling it twice for the same sentence double-counts, so the
// client must call it exactly once per sentence.
func (r *Registry) CompleteSentence(batch *models.KeystrokeBatch, callerID string) (SentenceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(batch.ParticipantID, callerID); err != nil {
		return SentenceResult{}, err
	}

	p := r.participants[batch.ParticipantID]
	if p.Metrics == nil {
		p.Metrics = &sessionMetrics{}
	}

	charCount := metrics.CharCount(batch.Keystrokes)
	elapsed := metrics.SentenceElapsed(batch.Keystrokes)

	p.Metrics.TotalKeystrokes += len(batch.Keystrokes)
	p.Metrics.TotalChars += charCount
	if elapsed > 0 {
		p.Metrics.TotalTimeMs += elapsed
	}
	p.Metrics.SentenceCount++

	return SentenceResult{
		KeystrokeCount: len(batch.Keystrokes),
		SentenceWPM:    metrics.CalculateWPM(charCount, elapsed),
		Rhythm:         metrics.RhythmMetrics(batch.Keystrokes),
	}, nil
}

// EndTest finalizes the sitting: writes the summary row to the journal,
// hands the buffered batches to the warehouse sink, and tears down every
// piece of in-memory state for the participant. A journal failure aborts
// before any teardown so the call can be retried; a sink failure never
// blocks teardown.
func (r *Registry) EndTest(participantID string, testSectionIDs []string, callerID string) (EndResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(participantID, callerID); err != nil {
		return EndResult{}, err
	}

	p := r.participants[participantID]

	var totalKeystrokes, totalChars, sentenceCount int
	var totalTimeMs int64
	if p.Metrics != nil {
		totalKeystrokes = p.Metrics.TotalKeystrokes
		totalChars = p.Metrics.TotalChars
		totalTimeMs = p.Metrics.TotalTimeMs
		sentenceCount = p.Metrics.SentenceCount
	}
	if sentenceCount == 0 {
		sentenceCount = len(testSectionIDs)
	}
	averageWPM := metrics.CalculateWPM(totalChars, totalTimeMs)

	summarySectionID := NewTestSectionID()
	if len(testSectionIDs) > 0 {
		summarySectionID = testSectionIDs[0]
	}

	if err := r.journal.WriteSession(participantID, summarySectionID, sentenceCount, totalKeystrokes, averageWPM, p.SessionTimestamp); err != nil {
		return EndResult{}, fmt.Errorf("journal write failed: %w", err)
	}

	// Hand the buffered batches to the warehouse. Best effort only: the
	// sink retries on its own schedule and a full queue just drops.
	if r.sink != nil {
		for _, sectionID := range testSectionIDs {
			if combined, ok := combineBatches(r.pendingUpload[sectionID], sectionID); ok {
				r.sink.EnqueueKeystrokes(combined, p.SessionTimestamp)
			}
		}
		r.sink.EnqueueSession(participantID, summarySectionID, sentenceCount, totalKeystrokes, averageWPM, p.SessionTimestamp)
	}

	for _, sectionID := range testSectionIDs {
		delete(r.pendingUpload, sectionID)
		delete(r.sections, sectionID)
	}
	for _, sectionID := range p.SectionIDs {
		delete(r.pendingUpload, sectionID)
		delete(r.sections, sectionID)
	}
	delete(r.participants, participantID)
	if r.activeByUser[callerID] == participantID {
		delete(r.activeByUser, callerID)
	}

	r.log.Info("Test ended",
		zap.String("participant_id", participantID),
		zap.Int("sentence_count", sentenceCount),
		zap.Int("total_keystrokes", totalKeystrokes),
		zap.Float64("average_wpm", averageWPM),
	)

	return EndResult{
		SentenceCount:   sentenceCount,
		TotalKeystrokes: totalKeystrokes,
		AverageWPM:      averageWPM,
	}, nil
}

// SectionStats returns the in-memory snapshot for one test section.
func (r *Registry) SectionStats(testSectionID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sec, ok := r.sections[testSectionID]
	if !ok {
		return Stats{}, ErrNotFound
	}

	stats := Stats{
		ParticipantID:   sec.ParticipantID,
		Sentence:        sec.Sentence,
		SentenceCount:   sec.SentenceCount,
		TotalKeystrokes: sec.TotalKeystrokes,
		NextKeystrokeID: sec.NextKeystrokeID,
	}
	if p, ok := r.participants[sec.ParticipantID]; ok {
		stats.QuestionCount = p.QuestionCount
	}
	return stats, nil
}

// sessionTimestampLocked resolves the partition key for a participant,
// falling back to the current wall clock for sittings the registry no longer
// tracks. Callers must hold r.mu.
func (r *Registry) sessionTimestampLocked(participantID string) string {
	if p, ok := r.participants[participantID]; ok {
		return p.SessionTimestamp
	}
	return r.now().Format(timestampLayout)
}

// combineBatches merges all buffered batches for one test section into a
// single upload, keeping the most recent user input snapshot.
func combineBatches(batches []models.KeystrokeBatch, testSectionID string) (models.KeystrokeBatch, bool) {
	if len(batches) == 0 {
		return models.KeystrokeBatch{}, false
	}

	combined := models.KeystrokeBatch{
		ParticipantID: batches[0].ParticipantID,
		TestSectionID: testSectionID,
		Sentence:      batches[0].Sentence,
	}
	for _, b := range batches {
		combined.Keystrokes = append(combined.Keystrokes, b.Keystrokes...)
		if b.UserInput != "" {
			combined.UserInput = b.UserInput
		}
	}
	if len(combined.Keystrokes) == 0 {
		return models.KeystrokeBatch{}, false
	}
	return combined, true
}
