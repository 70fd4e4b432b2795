package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Snapshot describes a catalog response that could not be parsed.
type Snapshot struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Error       string    `json:"error"`
	BodyPrefix  string    `json:"body_prefix,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Auditor writes diagnostic snapshots to a directory, one JSON file each.
type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveSnapshot stores a malformed-response snapshot and returns its filename.
func (a *Auditor) SaveSnapshot(s Snapshot) (string, error) {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now().UTC()
	}
	return a.SaveJSON(s)
}

// SaveJSON saves the provided data as JSON to a file with UUID4 filename
func (a *Auditor) SaveJSON(data any) (string, error) {
	if err := a.ensureAuditDir(); err != nil {
		return "", fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	auditID := uuid.New()
	filename := fmt.Sprintf("%s.json", auditID.String())
	path := filepath.Join(a.AuditDir, filename)

	log.Printf("Saving audit snapshot: %s", path)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0600); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}

	return filename, nil
}

// ensureAuditDir creates the audit directory if it doesn't exist
func (a *Auditor) ensureAuditDir() error {
	if _, err := os.Stat(a.AuditDir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.AuditDir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return nil
}
