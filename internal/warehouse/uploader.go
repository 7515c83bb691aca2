package warehouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

// uploadClient is the slice of Client the uploader needs; split out so tests
// can substitute a fake warehouse.
type uploadClient interface {
	UpsertKeystrokes(ctx context.Context, batch models.KeystrokeBatch, sessionTimestamp string) error
	UpsertSession(ctx context.Context, participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) error
}

type intentKind int

const (
	intentKeystrokes intentKind = iota
	intentSession
)

type uploadIntent struct {
	kind             intentKind
	batch            models.KeystrokeBatch
	participantID    string
	testSectionID    string
	sentenceCount    int
	totalKeystrokes  int
	averageWPM       float64
	sessionTimestamp string
}

func (i uploadIntent) sectionID() string {
	if i.kind == intentKeystrokes {
		return i.batch.TestSectionID
	}
	return i.testSectionID
}

// Uploader decouples the session registry from the warehouse: the registry
// enqueues upload intents and a single background worker drains them with
// its own retry schedule. Enqueue never blocks; when the queue is full the
// intent is dropped and logged, which is acceptable because the journal
// already holds the durable copy.
type Uploader struct {
	client      uploadClient
	log         *zap.Logger
	queue       chan uploadIntent
	maxAttempts int
	retryDelay  time.Duration
	wg          sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewUploader starts the background worker. queueSize bounds the number of
// in-flight intents.
func NewUploader(client uploadClient, queueSize int, log *zap.Logger) *Uploader {
	return newUploader(client, queueSize, 3, 2*time.Second, log)
}

func newUploader(client uploadClient, queueSize, maxAttempts int, retryDelay time.Duration, log *zap.Logger) *Uploader {
	if queueSize <= 0 {
		queueSize = 256
	}
	u := &Uploader{
		client:      client,
		log:         log,
		queue:       make(chan uploadIntent, queueSize),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
	u.wg.Add(1)
	go u.run()
	return u
}

// EnqueueKeystrokes queues a combined keystroke batch for upload.
func (u *Uploader) EnqueueKeystrokes(batch models.KeystrokeBatch, sessionTimestamp string) {
	u.enqueue(uploadIntent{
		kind:             intentKeystrokes,
		batch:            batch,
		sessionTimestamp: sessionTimestamp,
	})
}

// EnqueueSession queues a session summary for upload.
func (u *Uploader) EnqueueSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) {
	u.enqueue(uploadIntent{
		kind:             intentSession,
		participantID:    participantID,
		testSectionID:    testSectionID,
		sentenceCount:    sentenceCount,
		totalKeystrokes:  totalKeystrokes,
		averageWPM:       averageWPM,
		sessionTimestamp: sessionTimestamp,
	})
}

func (u *Uploader) enqueue(intent uploadIntent) {
	// The send races Close otherwise: a send on the closed queue panics.
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		u.log.Warn("Warehouse uploader closed, dropping intent",
			zap.String("test_section_id", intent.sectionID()),
		)
		return
	}
	select {
	case u.queue <- intent:
	default:
		u.log.Warn("Warehouse upload queue full, dropping intent",
			zap.String("test_section_id", intent.sectionID()),
		)
	}
}

func (u *Uploader) run() {
	defer u.wg.Done()
	for intent := range u.queue {
		u.deliver(intent)
	}
}

func (u *Uploader) deliver(intent uploadIntent) {
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := u.dispatch(ctx, intent)
		cancel()
		if err == nil {
			return
		}

		u.log.Warn("Warehouse upload failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < u.maxAttempts {
			time.Sleep(u.retryDelay * time.Duration(attempt))
		}
	}
	u.log.Error("Warehouse upload abandoned after retries",
		zap.String("test_section_id", intent.sectionID()),
	)
}

func (u *Uploader) dispatch(ctx context.Context, intent uploadIntent) error {
	switch intent.kind {
	case intentSession:
		return u.client.UpsertSession(ctx,
			intent.participantID,
			intent.testSectionID,
			intent.sentenceCount,
			intent.totalKeystrokes,
			intent.averageWPM,
			intent.sessionTimestamp,
		)
	default:
		return u.client.UpsertKeystrokes(ctx, intent.batch, intent.sessionTimestamp)
	}
}

// Close stops accepting intents and waits for the worker to drain the queue.
// Safe to call more than once and safe to race with Enqueue calls; intents
// arriving after Close are dropped.
func (u *Uploader) Close() {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.queue)
	}
	u.mu.Unlock()
	u.wg.Wait()
}
