// Package leader provides the coordination client for cluster-singleton
// roles. Leadership is advisory and serves liveness only: the ingestion
// pipeline's optimistic commit is what actually protects ordering when
// two nodes briefly both believe they lead.
package leader

import "context"

type EventType int

const (
	BecameLeader EventType = iota
	LostLeadership
)

func (t EventType) String() string {
	if t == BecameLeader {
		return "became_leader"
	}
	return "lost_leadership"
}

type Event struct {
	Type EventType
}

// Elector delivers leadership transitions for one worker role. At most
// one process cluster-wide observes BecameLeader without a subsequent
// LostLeadership at any time.
type Elector interface {
	// Run participates in the election until ctx is cancelled.
	Run(ctx context.Context)
	// Events streams leadership transitions, starting from follower.
	Events() <-chan Event
	// Resign voluntarily gives up leadership; the elector may stand for
	// election again afterwards.
	Resign()
}
