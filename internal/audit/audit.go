// Package audit records a decision trail for every state-mutating timer command.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/rs/zerolog/log"
)

// Outcomes written to the audit trail.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder writes audit records for timer commands.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a new audit recorder.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record writes an audit record. A nil Recorder is a no-op.
func (r *Recorder) Record(ctx context.Context, action string, inputs interface{}, outcome, runID, details string) (*models.AuditRecord, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	rec, err := r.store.WriteAudit(ctx, action, HashInputs(inputs), outcome, runID, details)
	if err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit: write failed")
		return nil, err
	}
	return rec, nil
}

// HashInputs returns the hex SHA256 of the JSON form of inputs.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
