package syncer

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
)

// ResumeToken is the opaque handle handed back when a run pauses. It
// binds the resume point to the run that produced it so a token cannot
// replay against a checkpoint that has since moved.
type ResumeToken struct {
	Source    model.Source `json:"source"`
	Cursor    string       `json:"cursor"`
	Processed int64        `json:"processed"`
	RunID     string       `json:"run_id"`
}

// Encode serializes the token to URL-safe base64.
func (t ResumeToken) Encode() string {
	raw, _ := json.Marshal(t)
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeResumeToken parses an encoded token. Malformed input yields
// ErrInvalidResumeToken.
func DecodeResumeToken(s string) (ResumeToken, error) {
	var t ResumeToken
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return t, eris.Wrap(ErrInvalidResumeToken, "not base64")
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, eris.Wrap(ErrInvalidResumeToken, "not a token payload")
	}
	if !t.Source.Valid() || t.RunID == "" {
		return t, eris.Wrap(ErrInvalidResumeToken, "missing source or run id")
	}
	return t, nil
}

// validateAgainst checks the token against the persisted checkpoint. The
// checkpoint is authoritative: the token must name the paused run and
// agree on the exact resume position.
func (t ResumeToken) validateAgainst(cp *model.SyncCheckpoint) error {
	switch {
	case cp.Status != model.CheckpointPaused:
		return eris.Wrapf(ErrInvalidResumeToken, "source %s is %s, not paused", t.Source, cp.Status)
	case cp.RunID != t.RunID:
		return eris.Wrap(ErrInvalidResumeToken, "token from a different run")
	case cp.Cursor != t.Cursor || cp.ProcessedCount != t.Processed:
		return eris.Wrap(ErrInvalidResumeToken, "token disagrees with checkpoint position")
	}
	return nil
}
