package domain

import (
	"context"

	"github.com/erigontech/domaincore/domain/backup"
)

// installBackup starts slot's companion backup goroutine (spec section
// 4.4). The handler it's given is exactly interrupt.Interruptor's
// "invokes the STW handler" contract: drain the coordinator's current
// request on behalf of whatever goroutine is blocked for this slot.
func installBackup(rt *Runtime, slot *Slot) error {
	ctx, cancel := context.WithCancel(context.Background())
	w := backup.New(slot.id, slot.interruptor, func(ctx context.Context) {
		if !rt.Coord.HandleIncoming(slot, nil) {
			// No STW request was published for this poke: a plain
			// external interrupt delivered while the mutator was blocked,
			// spec section 6's domain_external_interrupt_hook.
			rt.Hooks.fire(rt.Hooks.ExternalInterruptHook, slot.UniqueID())
		}
	})
	slot.backup = w
	slot.backupCtx = ctx
	slot.backupCancel = cancel
	go w.Run(ctx)
	return nil
}

// EnterBlocking hands STW-servicing responsibility for slot to its backup
// thread: the mutator is about to call into native/blocking code (spec
// section 4.4/5, "enter_blocking"). The mutator must call LeaveBlocking
// before touching any domain-owned state again.
func (h *Handle) EnterBlocking() {
	h.slot.domainLock.Lock()
	h.slot.backup.SetState(backup.InBlocking)
	h.slot.domainLock.Unlock()
}

// LeaveBlocking reclaims STW-servicing responsibility from the backup
// thread (spec section 4.4/5, "leave_blocking").
func (h *Handle) LeaveBlocking() {
	h.slot.domainLock.Lock()
	h.slot.backup.SetState(backup.EnteringManaged)
	h.slot.domainLock.Unlock()
}
