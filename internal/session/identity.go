package session

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "20060102_150405"

var participantIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// DeriveParticipantID builds a human-traceable participant id from the local
// part of the account email plus a second-resolution timestamp, e.g.
// "janedoe_20240101_000000". The timestamp is returned separately because it
// doubles as the journal partition key. Never fails: an email whose local
// part sanitizes to nothing falls back to "user".
func DeriveParticipantID(email string, now time.Time) (participantID, sessionTimestamp string) {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	local = participantIDSanitizer.ReplaceAllString(local, "")
	if local == "" {
		local = "user"
	}
	sessionTimestamp = now.Format(timestampLayout)
	return local + "_" + sessionTimestamp, sessionTimestamp
}

// NewTestSectionID returns a random globally unique test section id.
func NewTestSectionID() string {
	return uuid.NewString()
}
