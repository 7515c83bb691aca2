// Package warehouse ships finished session data to the Databricks analytics
// warehouse. Delivery is best effort: the core of the platform journals
// everything locally first and never depends on the warehouse for
// correctness.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	dbsql "github.com/databricks/databricks-sql-go"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/config"
	"github.com/xsuryanshx/cognitive-load/internal/models"
)

const createKeystrokesTable = `
CREATE TABLE IF NOT EXISTS keystrokes (
	participant_id STRING,
	test_section_id STRING,
	sentence STRING,
	user_input STRING,
	keystroke_id INT,
	press_time BIGINT,
	release_time BIGINT,
	letter STRING,
	keycode INT,
	session_timestamp STRING,
	created_at TIMESTAMP
)`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	participant_id STRING,
	test_section_id STRING,
	created_at TIMESTAMP,
	sentence_count INT,
	total_keystrokes INT,
	average_wpm DOUBLE,
	session_timestamp STRING
)`

// Client talks SQL to a Databricks warehouse through the official
// database/sql driver.
type Client struct {
	db  *sql.DB
	log *zap.Logger
}

// NewClient opens a connection pool against the configured warehouse.
func NewClient(conf config.DatabricksConfig, log *zap.Logger) (*Client, error) {
	connector, err := dbsql.NewConnector(
		dbsql.WithServerHostname(conf.ServerHostname),
		dbsql.WithHTTPPath(conf.HTTPPath),
		dbsql.WithAccessToken(conf.AccessToken),
		dbsql.WithPort(443),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build databricks connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Client{db: db, log: log}, nil
}

// EnsureTables creates the warehouse tables if they do not exist yet.
func (c *Client) EnsureTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createKeystrokesTable); err != nil {
		return fmt.Errorf("failed to create keystrokes table: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// UpsertKeystrokes replaces the warehouse rows for one test section with the
// batch's events. Delete-then-insert keeps retried uploads idempotent.
func (c *Client) UpsertKeystrokes(ctx context.Context, batch models.KeystrokeBatch, sessionTimestamp string) error {
	if err := c.EnsureTables(ctx); err != nil {
		return err
	}

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM keystrokes WHERE participant_id = ? AND test_section_id = ?`,
		batch.ParticipantID, batch.TestSectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete stale keystrokes: %w", err)
	}

	stmt, err := c.db.PrepareContext(ctx,
		`INSERT INTO keystrokes
		(participant_id, test_section_id, sentence, user_input, keystroke_id,
		 press_time, release_time, letter, keycode, session_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare keystroke insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for idx, ks := range batch.Keystrokes {
		_, err := stmt.ExecContext(ctx,
			batch.ParticipantID,
			batch.TestSectionID,
			batch.Sentence,
			batch.UserInput,
			idx,
			ks.PressTime,
			ks.ReleaseTime,
			ks.Letter,
			ks.Keycode,
			sessionTimestamp,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert keystroke %d: %w", idx, err)
		}
	}
	return nil
}

// UpsertSession replaces the summary row for one (participant, section) pair.
func (c *Client) UpsertSession(ctx context.Context, participantID, testSectionID string, sentenceCount, totalKeystrokes int, averageWPM float64, sessionTimestamp string) error {
	if err := c.EnsureTables(ctx); err != nil {
		return err
	}

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE participant_id = ? AND test_section_id = ?`,
		participantID, testSectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete stale session: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO sessions
		(participant_id, test_section_id, created_at, sentence_count,
		 total_keystrokes, average_wpm, session_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		participantID,
		testSectionID,
		time.Now(),
		sentenceCount,
		totalKeystrokes,
		math.Round(averageWPM*100)/100,
		sessionTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}
