package worker

import (
	"context"
	"log/slog"

	"github.com/openbusio/backplane/internal/leader"
)

// Supervisor ties the processor's lifecycle to leadership events:
// BecameLeader starts the ingestion loop, LostLeadership cancels it.
// If the loop halts itself (optimistic lock lost), the supervisor
// resigns so another node can take over cleanly.
type Supervisor struct {
	elector   leader.Elector
	processor *Processor
}

func NewSupervisor(elector leader.Elector, processor *Processor) *Supervisor {
	return &Supervisor{
		elector:   elector,
		processor: processor,
	}
}

func (s *Supervisor) Run(ctx context.Context) {
	var cancel context.CancelFunc
	done := make(chan struct{})
	stop := func() {
		if cancel != nil {
			cancel()
			<-done
			cancel = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.elector.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case leader.BecameLeader:
				stop()
				runCtx, c := context.WithCancel(ctx)
				cancel = c
				done = make(chan struct{})
				go func() {
					defer close(done)
					s.processor.Run(runCtx)
					if runCtx.Err() == nil {
						// the loop halted on its own; step down so a
						// node with a clean view can take over
						slog.Info("processor halted while leading, resigning")
						s.elector.Resign()
					}
				}()
			case leader.LostLeadership:
				stop()
			}
		}
	}
}
