// Package domain implements the multi-domain coordination core: domain
// registry and slot allocation, unique-id assignment, domain lifecycle
// (spawn/terminate/fork) and its cooperation with the STW coordinator in
// domain/stw, wiring the Interruptor, Barrier, backup-thread FSM and
// minor-heap reservation pieces into one process-wide (or test-scoped)
// Runtime handle, per the "encapsulate globals in a Runtime" guidance of
// spec section 9.
package domain

import (
	"fmt"
	"sync"

	"github.com/erigontech/domaincore/domain/backup"
	"github.com/erigontech/domaincore/domain/dbg"
	"github.com/erigontech/domaincore/domain/dlog"
	"github.com/erigontech/domaincore/domain/minorheap"
	"github.com/erigontech/domaincore/domain/stw"
)

// Runtime owns every piece of process-wide state the spec would otherwise
// keep as true globals: the slot registry, the STW coordinator, the
// shared minor-heap reservation, and the optional lifecycle hooks.
type Runtime struct {
	Config    Config
	Hooks     Hooks
	Registry  *Registry
	Coord     *stw.Coordinator
	MinorHeap *minorheap.Reservation

	logger interface {
		Info(msg string, ctx ...interface{})
	}

	main *Handle

	// resizeMu guards resizeTarget and every read-modify-write of
	// MinorHeap during ResizeMinorHeapReservation (spec section 4.7);
	// it's distinct from Registry.mu because a resize's single-executor
	// phase runs inside an STW callback, not under all_domains_lock.
	resizeMu     sync.Mutex
	resizeTarget int
}

// NewRuntime reserves the minor-heap region, builds the slot registry and
// STW coordinator, and creates the bootstrap ("main") domain in slot 0
// with unique_id 0, as spec section 3 invariant 5 requires ("unique_id ==
// 0 is held by exactly one domain ever (the first-created)"). The
// returned Handle is that main domain's handle; the caller's own
// goroutine is considered its mutator thread.
func NewRuntime(cfg Config) (*Runtime, *Handle, error) {
	if cfg.MaxDomains <= 0 {
		return nil, nil, fmt.Errorf("domain: invalid MaxDomains=%d", cfg.MaxDomains)
	}
	reservation, err := minorheap.Reserve(cfg.MaxDomains, cfg.InitMinorHeapWords)
	if err != nil {
		Fatal("reserve initial minor heap: %v", err)
	}

	registry := newRegistry(cfg.MaxDomains)
	coord := stw.New(registry, &registry.mu)
	stw.SetTrace(dbg.TraceSTW)

	rt := &Runtime{
		Config:       cfg,
		Registry:     registry,
		Coord:        coord,
		MinorHeap:    reservation,
		logger:       dlog.New("runtime"),
		resizeTarget: cfg.InitMinorHeapWords,
	}

	main, err := rt.bootstrap()
	if err != nil {
		return nil, nil, err
	}
	rt.main = main
	rt.logger.Info("runtime started", "maxDomains", cfg.MaxDomains, "initMinorHeapWords", cfg.InitMinorHeapWords)
	return rt, main, nil
}

// bootstrap installs the first-ever domain (unique_id 0) into slot 0
// directly, bypassing the ordinary Spawn path: there is no parent to wait
// on a term-sync handshake, and no STW can be in flight yet.
func (rt *Runtime) bootstrap() (*Handle, error) {
	slot := rt.Registry.Slot(0)
	st := slot.ensureState()
	st.reset()

	rt.Registry.mu.Lock()
	slot.minorHeap = rt.MinorHeap.Slice(0)
	slot.interruptor.PublishWord(&st.YoungLimit)
	slot.interruptor.SetRunning(true)
	slot.uniqueID.Store(0)
	rt.Registry.publishParticipant(slot)
	rt.Registry.mu.Unlock()

	if err := installBackup(rt, slot); err != nil {
		return nil, fmt.Errorf("domain: %w: %v", ErrBackupInstallFailed, err)
	}
	rt.Hooks.fire(rt.Hooks.InitializeHook, 0)
	return &Handle{rt: rt, slot: slot}, nil
}

// Main returns the bootstrap domain's handle.
func (rt *Runtime) Main() *Handle { return rt.main }

// Shutdown tears down every backup-thread goroutine still running. It
// does not terminate mutator goroutines; callers are expected to have
// already joined every domain they spawned (Terminate is the per-domain
// teardown path).
func (rt *Runtime) Shutdown() {
	for i := 0; i < rt.Registry.MaxDomains(); i++ {
		s := rt.Registry.Slot(i)
		if s.backupCancel != nil {
			s.backup.SetState(backup.Terminate)
			s.backupCancel()
		}
	}
	_ = rt.MinorHeap.Close()
}
