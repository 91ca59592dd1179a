// Package backup implements the backup-thread finite-state machine of
// spec section 4.4: one companion goroutine per domain that services STW
// pokes while the domain's mutator goroutine is blocked outside managed
// code (a long native call, a blocking syscall stand-in, etc).
//
// Transitions are single-writer per state, exactly as spec'd:
//
//	INIT --install--> ENTERING_MANAGED --mutator leaves managed--> IN_BLOCKING
//	  ^                                                                |
//	  +---------------------- mutator re-enters managed ---------------+
//	(any) --domain_terminate--> TERMINATE --reaped--> INIT
package backup

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/erigontech/domaincore/domain/dlog"
	"github.com/erigontech/domaincore/domain/dmetrics"
	"github.com/erigontech/domaincore/domain/interrupt"
)

// State is one value of the backup-thread FSM.
type State int32

const (
	Init State = iota
	EnteringManaged
	InBlocking
	Terminate
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case EnteringManaged:
		return "ENTERING_MANAGED"
	case InBlocking:
		return "IN_BLOCKING"
	case Terminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handler is invoked by the backup goroutine on behalf of a blocked
// mutator whenever the domain's interruptor has a pending poke. It
// returns quickly: it is expected to be the STW handler
// (stw.Coordinator.HandleIncoming), never user code.
type Handler func(ctx context.Context)

// Worker is one domain's backup thread. The mutator goroutine writes
// state transitions via SetState; Worker.Run reads them and drives the
// FSM loop until Terminate is observed.
type Worker struct {
	domainID    int
	state       atomic.Int32
	interruptor *interrupt.Interruptor
	handle      Handler
	logger      interface {
		Debug(msg string, ctx ...interface{})
	}
	reaped chan struct{}
}

// New constructs a Worker for domainID wired to interruptor; handle is
// called whenever the backup thread observes a pending poke while
// IN_BLOCKING.
func New(domainID int, interruptor *interrupt.Interruptor, handle Handler) *Worker {
	w := &Worker{
		domainID:    domainID,
		interruptor: interruptor,
		handle:      handle,
		logger:      dlog.New("backup"),
		reaped:      make(chan struct{}),
	}
	w.state.Store(int32(Init))
	return w
}

// State returns the current FSM state.
func (w *Worker) State() State { return State(w.state.Load()) }

// SetState is called by the mutator goroutine (the single writer for
// every transition except Worker's own Init-on-exit) to drive the FSM:
// EnteringManaged before re-entering managed code, InBlocking before
// leaving it, Terminate at domain teardown.
func (w *Worker) SetState(s State) {
	w.state.Store(int32(s))
	// Wake Run out of its WaitPending regardless of which state this is;
	// Run re-reads the FSM state itself once woken.
	w.interruptor.Nudge()
}

// Reaped returns a channel closed once Run has observed Terminate and
// published Init, mirroring "TERMINATE: publishes INIT and exits."
func (w *Worker) Reaped() <-chan struct{} { return w.reaped }

// Run drives the FSM loop. It must run in its own goroutine for the
// lifetime of the domain; it exits only after observing Terminate.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		w.state.Store(int32(Init))
		close(w.reaped)
	}()
	for {
		switch w.State() {
		case Init, EnteringManaged:
			// Backup sleeps until the mutator hands it the domain by
			// switching to IN_BLOCKING, or tears down via Terminate.
			w.interruptor.WaitPending(ctx.Done())
			if w.State() == Terminate {
				return
			}
		case InBlocking:
			if w.interruptor.HasPending() {
				dmetrics.BackupThreadActivations.Inc()
				w.logger.Debug("backup servicing STW poke", "domain", w.domainID)
				w.interruptor.SetHandled()
				w.handle(ctx)
			}
			w.interruptor.WaitPending(ctx.Done())
			if w.State() == Terminate {
				return
			}
		case Terminate:
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
