// Package journal persists keystroke telemetry as append-only CSV files,
// one storage partition per (participant, session timestamp).
package journal

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

const (
	keystrokesFile = "keystrokes.csv"
	sessionsFile   = "sessions.csv"
)

var keystrokeHeader = []string{
	"PARTICIPANT_ID",
	"TEST_SECTION_ID",
	"SENTENCE",
	"USER_INPUT",
	"KEYSTROKE_ID",
	"PRESS_TIME",
	"RELEASE_TIME",
	"LETTER",
	"KEYCODE",
}

var sessionHeader = []string{
	"PARTICIPANT_ID",
	"TEST_SECTION_ID",
	"CREATED_AT",
	"SENTENCE_COUNT",
	"TOTAL_KEYSTROKES",
	"AVERAGE_WPM",
}

// Writer is a thread-safe journal writer. Writes to the same partition are
// serialized by a per-partition lock; distinct partitions write concurrently.
type Writer struct {
	dataDir string

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewWriter creates a journal writer rooted at dataDir, creating the
// directory if needed.
func NewWriter(dataDir string) (*Writer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal data dir: %w", err)
	}
	return &Writer{
		dataDir: dataDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// partitionLock returns the mutex serializing writes to one partition.
func (w *Writer) partitionLock(participantID, sessionTimestamp string) *sync.Mutex {
	key := participantID + "/" + sessionTimestamp
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[key] = lock
	}
	return lock
}

// partitionDir creates (if needed) and returns the partition directory
// dataDir/{participantID}/{sessionTimestamp}.
func (w *Writer) partitionDir(participantID, sessionTimestamp string) (string, error) {
	dir := filepath.Join(w.dataDir, participantID, sessionTimestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition dir: %w", err)
	}
	return dir, nil
}

// openAppend opens the named CSV for appending, writing the header first if
// the file is being created. Reopening an existing file never duplicates
// the header.
func openAppend(dir, name string, header []string) (*os.File, error) {
	path := filepath.Join(dir, name)
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	if isNew {
		cw := csv.NewWriter(f)
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write %s header: %w", name, err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to flush %s header: %w", name, err)
		}
	}
	return f, nil
}

// WriteKeystrokes appends one row per event in the batch, assigning sequence
// ids startID..startID+len-1. The write either lands completely or the error
// is returned to the caller; the journal never acknowledges a partial batch
// silently.
func (w *Writer) WriteKeystrokes(batch *models.KeystrokeBatch, startID int, sessionTimestamp string) error {
	lock := w.partitionLock(batch.ParticipantID, sessionTimestamp)
	lock.Lock()
	defer lock.Unlock()

	dir, err := w.partitionDir(batch.ParticipantID, sessionTimestamp)
	if err != nil {
		return err
	}

	f, err := openAppend(dir, keystrokesFile, keystrokeHeader)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	for idx, ks := range batch.Keystrokes {
		row := []string{
			batch.ParticipantID,
			batch.TestSectionID,
			batch.Sentence,
			batch.UserInput,
			strconv.Itoa(startID + idx),
			strconv.FormatInt(ks.PressTime, 10),
			strconv.FormatInt(ks.ReleaseTime, 10),
			ks.Letter,
			strconv.Itoa(ks.Keycode),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write keystroke row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush keystroke rows: %w", err)
	}
	return nil
}

// WriteSession appends one test-completion summary row to the partition.
func (w *Writer) WriteSession(participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) error {
	lock := w.partitionLock(participantID, sessionTimestamp)
	lock.Lock()
	defer lock.Unlock()

	dir, err := w.partitionDir(participantID, sessionTimestamp)
	if err != nil {
		return err
	}

	f, err := openAppend(dir, sessionsFile, sessionHeader)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	row := []string{
		participantID,
		testSectionID,
		time.Now().Format(time.RFC3339),
		strconv.Itoa(sentenceCount),
		strconv.Itoa(totalKeystrokes),
		strconv.FormatFloat(round2(averageWPM), 'f', 2, 64),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("failed to write session row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush session row: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
