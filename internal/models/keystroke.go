package models

// KeystrokeEvent is a single physical key action reported by the client.
// Times are wall-clock milliseconds as captured by the browser; Letter is
// either the resolved character or a named special key like "SHIFT" or "BKSP".
type KeystrokeEvent struct {
	PressTime   int64  `json:"press_time"`
	ReleaseTime int64  `json:"release_time"`
	Keycode     int    `json:"keycode"`
	Letter      string `json:"letter"`
}

// KeystrokeBatch is an ordered set of keystroke events submitted together.
// UserInput is the client's input-field snapshot at submission time.
type KeystrokeBatch struct {
	ParticipantID string           `json:"participant_id" binding:"required"`
	TestSectionID string           `json:"test_section_id" binding:"required"`
	Sentence      string           `json:"sentence" binding:"required"`
	UserInput     string           `json:"user_input"`
	Keystrokes    []KeystrokeEvent `json:"keystrokes" binding:"required"`
}

// SessionCreate is the request body for starting a new typing test.
type SessionCreate struct {
	QuestionCount int `json:"question_count" binding:"omitempty,min=1,max=50"`
}

// SessionResponse carries the identifiers a client needs for all
// subsequent lifecycle calls.
type SessionResponse struct {
	ParticipantID string `json:"participant_id"`
	TestSectionID string `json:"test_section_id"`
	Message       string `json:"message"`
}

// TestSectionCreate opens a new test section for one sentence.
type TestSectionCreate struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	Sentence      string `json:"sentence" binding:"required"`
}

type TestSectionResponse struct {
	TestSectionID string `json:"test_section_id"`
	Message       string `json:"message"`
}

// EndTestRequest finalizes a sitting. TestSectionIDs lists every section the
// client opened so the server can flush and release them.
type EndTestRequest struct {
	ParticipantID  string   `json:"participant_id" binding:"required"`
	TestSectionIDs []string `json:"test_section_ids" binding:"required"`
}
