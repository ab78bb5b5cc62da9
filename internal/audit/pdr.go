// Package audit provides PDR (Process Decision Record) writing for setpoint
// changes and plan runs.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/store"
)

// Actions recorded by the control plane.
const (
	ActionSetpointWrite = "setpoint.write"
	ActionPlanExecute   = "plan.execute"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store *store.Store
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s *store.Store) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, executionID, details string) (*models.PDREntry, error) {
	return w.store.WritePDR(action, HashInputs(inputs), outcome, executionID, details)
}

// HashInputs returns the SHA256 of the JSON encoding of inputs. Map keys are
// encoded sorted, so equal inputs always hash the same.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
