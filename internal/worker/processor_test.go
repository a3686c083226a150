package worker

import (
	"context"
	"testing"
	"time"

	"github.com/openbusio/backplane/internal/message"
	"github.com/openbusio/backplane/internal/registry"
	"github.com/openbusio/backplane/model"
	"github.com/openbusio/backplane/params"
)

type fakeBusRepository struct {
	buses map[string]*model.BusConfig
}

func (r *fakeBusRepository) Get(ctx context.Context, name string) (*model.BusConfig, error) {
	if bus, ok := r.buses[name]; ok {
		return bus, nil
	}
	return nil, registry.ErrBusNotFound
}

func (r *fakeBusRepository) ListByOwner(ctx context.Context, owner string) ([]model.BusConfig, error) {
	return nil, nil
}

func (r *fakeBusRepository) Create(ctx context.Context, bus *model.BusConfig) error {
	r.buses[bus.Name] = bus
	return nil
}

func (r *fakeBusRepository) Delete(ctx context.Context, name string) error {
	delete(r.buses, name)
	return nil
}

func newTestProcessor() *Processor {
	return NewProcessor(nil, &fakeBusRepository{
		buses: map[string]*model.BusConfig{
			"example.com": {
				Name:                   "example.com",
				RetentionSeconds:       300,
				StickyRetentionSeconds: 28800,
			},
		},
	})
}

// TestStageMessageAssignsID verifies a queued message without an id gets
// one derived from the staging time.
func TestStageMessageAssignsID(t *testing.T) {
	p := newTestProcessor()
	now := time.Now().UTC()
	msg := &message.Message{Bus: "example.com", Channel: "chan1", Payload: []byte(`{}`)}

	st, lastID, err := p.stageMessage(context.Background(), msg, "", now)
	if err != nil {
		t.Fatalf("stageMessage failed: %v", err)
	}
	if msg.ID == "" || lastID != msg.ID {
		t.Fatalf("staged message id = %q, lastID = %q", msg.ID, lastID)
	}
	assignedAt, err := message.TimeFromID(msg.ID)
	if err != nil {
		t.Fatalf("assigned id not parseable: %v", err)
	}
	if assignedAt.UnixMilli() != now.UnixMilli() {
		t.Fatalf("assigned time = %v, want %v", assignedAt, now)
	}
	if st.ttl != 300*time.Second {
		t.Fatalf("ttl = %v, want bus retention 300s", st.ttl)
	}
}

// TestStageMessageOrderingCorrection verifies a candidate id at or
// before the last assigned id is bumped forward past it.
func TestStageMessageOrderingCorrection(t *testing.T) {
	p := newTestProcessor()
	now := time.Now().UTC()
	first := &message.Message{Bus: "example.com", Channel: "chan1", Payload: []byte(`{}`)}
	second := &message.Message{Bus: "example.com", Channel: "chan1", Payload: []byte(`{}`)}

	_, lastID, err := p.stageMessage(context.Background(), first, "", now)
	if err != nil {
		t.Fatalf("stageMessage failed: %v", err)
	}
	// force a candidate id equal to the last assigned one
	second.ID = lastID
	st, newLastID, err := p.stageMessage(context.Background(), second, lastID, now)
	if err != nil {
		t.Fatalf("stageMessage failed: %v", err)
	}
	if !st.corrected {
		t.Fatal("second message with the same timestamp was not corrected")
	}
	if second.ID <= lastID {
		t.Fatalf("order violated: %q <= %q", second.ID, lastID)
	}
	if newLastID != second.ID {
		t.Fatalf("lastID = %q, want %q", newLastID, second.ID)
	}
}

// TestStageMessageUnknownBusFallback verifies messages for unregistered
// buses still get staged with default retention.
func TestStageMessageUnknownBusFallback(t *testing.T) {
	p := newTestProcessor()
	now := time.Now().UTC()
	msg := &message.Message{Bus: "unknown.example", Channel: "chan1", Payload: []byte(`{}`)}

	st, _, err := p.stageMessage(context.Background(), msg, "", now)
	if err != nil {
		t.Fatalf("stageMessage failed: %v", err)
	}
	if st.ttl != params.DefaultRetentionSeconds*time.Second {
		t.Fatalf("ttl = %v, want default retention", st.ttl)
	}
	msg2 := &message.Message{Bus: "unknown.example", Channel: "chan1", Sticky: true, Payload: []byte(`{}`)}
	st2, _, err := p.stageMessage(context.Background(), msg2, msg.ID, now)
	if err != nil {
		t.Fatalf("stageMessage failed: %v", err)
	}
	if st2.ttl != params.DefaultStickyRetentionSeconds*time.Second {
		t.Fatalf("sticky ttl = %v, want default sticky retention", st2.ttl)
	}
}
