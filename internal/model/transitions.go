package model

import (
	"time"

	"motofrete/internal/apperr"
)

// Order transitions. Each guard validates the current state, applies the
// effects in place and returns InvalidTransition otherwise, leaving the
// order untouched.

// StartPrep moves a freshly created order into preparation.
func (o *Order) StartPrep(now time.Time) error {
	if o.Status != OrderCreated {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode entrar em preparo (status atual: %s)", o.Status)
	}
	o.Status = OrderPreparing
	o.UpdatedAt = now
	return nil
}

// Scan marks the order ready for dispatch (the kitchen scanned its tag).
func (o *Order) Scan(now time.Time) error {
	if o.Status != OrderCreated && o.Status != OrderPreparing {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode ser bipado (status atual: %s)", o.Status)
	}
	o.Status = OrderReady
	o.ReadyAt = &now
	o.UpdatedAt = now
	return nil
}

// Assign binds the order to a batch with its stop position. Only the
// dispatcher calls this.
func (o *Order) Assign(batchID string, stopOrder int, now time.Time) error {
	if o.Status != OrderReady {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode ser atribuído (status atual: %s)", o.Status)
	}
	o.Status = OrderAssigned
	o.BatchID = &batchID
	o.StopOrder = &stopOrder
	o.UpdatedAt = now
	return nil
}

// Pickup records the courier collecting the order.
func (o *Order) Pickup(now time.Time) error {
	if o.Status != OrderAssigned {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode ser coletado (status atual: %s)", o.Status)
	}
	o.Status = OrderPickedUp
	o.UpdatedAt = now
	return nil
}

// Deliver records the hand-off to the customer. Permitted straight from
// assigned: couriers often skip the pickup tap.
func (o *Order) Deliver(now time.Time) error {
	if o.Status != OrderAssigned && o.Status != OrderPickedUp {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode ser entregue (status atual: %s)", o.Status)
	}
	o.Status = OrderDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel takes any non-terminal order out of play. A batched order leaves
// its batch untouched apart from this one entry.
func (o *Order) Cancel(now time.Time) error {
	if o.Status.Terminal() {
		return apperr.Newf(apperr.InvalidTransition,
			"Pedido não pode ser cancelado (status atual: %s)", o.Status)
	}
	o.Status = OrderCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Courier transitions.

// SetAvailable puts the courier in the dispatch queue and stamps the FIFO
// position.
func (c *Courier) SetAvailable(now time.Time) error {
	if c.Status == CourierBusy {
		return apperr.New(apperr.InvalidTransition,
			"Motoqueiro tem entregas pendentes. Finalize antes de ficar disponível.")
	}
	c.Status = CourierAvailable
	c.AvailableSince = &now
	c.UpdatedAt = now
	return nil
}

// SetOffline removes the courier from service. hasActiveBatch is the
// caller's store lookup; a courier mid-run must complete first.
func (c *Courier) SetOffline(hasActiveBatch bool, now time.Time) error {
	if c.Status == CourierBusy || hasActiveBatch {
		return apperr.New(apperr.InvalidTransition,
			"Motoqueiro tem entregas pendentes. Finalize antes de sair.")
	}
	c.Status = CourierOffline
	c.AvailableSince = nil
	c.UpdatedAt = now
	return nil
}

// SetBusy claims an available courier for a batch. Only the dispatcher
// calls this.
func (c *Courier) SetBusy(now time.Time) error {
	if c.Status != CourierAvailable {
		return apperr.Newf(apperr.InvalidTransition,
			"Motoqueiro não está disponível (status atual: %s)", c.Status)
	}
	c.Status = CourierBusy
	c.UpdatedAt = now
	return nil
}

// Release returns a busy courier to the queue after its batch completes.
func (c *Courier) Release(now time.Time) error {
	if c.Status != CourierBusy {
		return apperr.Newf(apperr.InvalidTransition,
			"Motoqueiro não está em entrega (status atual: %s)", c.Status)
	}
	c.Status = CourierAvailable
	c.AvailableSince = &now
	c.UpdatedAt = now
	return nil
}

// Batch transitions.

// Start flips the batch to in_progress the first time a courier acts on
// one of its orders. Idempotent once started.
func (b *Batch) Start() error {
	switch b.Status {
	case BatchAssigned:
		b.Status = BatchInProgress
		return nil
	case BatchInProgress:
		return nil
	default:
		return apperr.Newf(apperr.InvalidTransition,
			"Lote não pode ser iniciado (status atual: %s)", b.Status)
	}
}

// Complete terminates the batch. allDelivered is the caller's check over
// the contained orders; done always stamps completed_at.
func (b *Batch) Complete(allDelivered bool, now time.Time) error {
	if !b.Active() {
		return apperr.Newf(apperr.InvalidTransition,
			"Lote não pode ser finalizado (status atual: %s)", b.Status)
	}
	if !allDelivered {
		return apperr.New(apperr.InvalidTransition,
			"Lote ainda tem pedidos não entregues")
	}
	b.Status = BatchDone
	b.CompletedAt = &now
	return nil
}
