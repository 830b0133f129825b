package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fieldops-backend/internal/models"

	"github.com/google/uuid"
)

// AuditRepo persists audit events
type AuditRepo interface {
	Insert(ctx context.Context, ev *models.AuditEvent) error
}

// AuditSink records structured audit events asynchronously. A failed insert
// is logged and dropped; it never blocks or fails the primary operation.
type AuditSink struct {
	repo AuditRepo
}

func NewAuditSink(repo AuditRepo) *AuditSink {
	return &AuditSink{repo: repo}
}

// Record implements the Auditor port
func (s *AuditSink) Record(event, tenantID, teamID string, details map[string]interface{}) {
	if s == nil || s.repo == nil {
		return
	}

	payload, err := json.Marshal(details)
	if err != nil {
		log.Printf("⚠️  Failed to marshal audit details for %s: %v", event, err)
		payload = []byte("{}")
	}

	ev := &models.AuditEvent{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TeamID:    teamID,
		Event:     event,
		Details:   payload,
		CreatedAt: time.Now().Unix(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.Insert(ctx, ev); err != nil {
			log.Printf("⚠️  Failed to record audit event %s: %v", event, err)
		}
	}()
}
