// Package audit records grant and registry operations to the durable
// database so authorization changes stay attributable after the fact.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/openbusio/backplane/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeGrantIssued      = "grant_issued"
	EventTypeGrantRevoked     = "grant_revoked"
	EventTypeBusProvisioned   = "bus_provisioned"
	EventTypeBusDeprovisioned = "bus_deprovisioned"
)

type GrantRecord struct {
	Owner    string
	ClientID string
	GrantID  string
	Buses    []string
}

type BusRecord struct {
	Actor string
	Bus   string
}

// record is best effort; an audit write failure is logged, never
// surfaced to the operation being audited.
func record(ctx context.Context, event *model.AuditEvent) {
	if auditRepo == nil {
		return
	}
	if err := auditRepo.RecordEvent(ctx, event); err != nil {
		slog.Warn("failed to record audit event", "type", event.EventType, "error", err)
	}
}

func RecordGrantIssued(ctx context.Context, rec GrantRecord) {
	record(ctx, &model.AuditEvent{
		Actor:     rec.Owner,
		EventType: EventTypeGrantIssued,
		ClientID:  rec.ClientID,
		GrantID:   rec.GrantID,
		Buses:     strings.Join(rec.Buses, " "),
	})
}

func RecordGrantRevoked(ctx context.Context, rec GrantRecord) {
	record(ctx, &model.AuditEvent{
		Actor:     rec.Owner,
		EventType: EventTypeGrantRevoked,
		ClientID:  rec.ClientID,
		GrantID:   rec.GrantID,
		Buses:     strings.Join(rec.Buses, " "),
	})
}

func RecordBusProvisioned(ctx context.Context, rec BusRecord) {
	record(ctx, &model.AuditEvent{
		Actor:     rec.Actor,
		EventType: EventTypeBusProvisioned,
		Buses:     rec.Bus,
	})
}

func RecordBusDeprovisioned(ctx context.Context, rec BusRecord) {
	record(ctx, &model.AuditEvent{
		Actor:     rec.Actor,
		EventType: EventTypeBusDeprovisioned,
		Buses:     rec.Bus,
	})
}
