package model

// EventInventory is the seat pool of one event as seen by the claim
// subsystem.  Capacity is fixed when the event is created; only the
// reservation coordinator moves TicketsAvailable, one seat per claim.
//
// Fields:
//  EventID          – events.id, owned by the event lifecycle.
//  Capacity         – total seats, immutable here.
//  TicketsAvailable – seats still claimable, 0 <= n <= Capacity.
//  PriceCents       – current price; 0 means the event is free.
type EventInventory struct {
	EventID          uint64 // events.id
	Capacity         uint32 // events.capacity
	TicketsAvailable uint32 // events.tickets_available
	PriceCents       uint32 // events.price_cents
}

// Issued reports how many tickets the inventory row accounts for.
func (e EventInventory) Issued() uint32 {
	return e.Capacity - e.TicketsAvailable
}

// KindForPrice derives the ticket kind from the price at issuance time.
func (e EventInventory) KindForPrice() TicketKind {
	if e.PriceCents > 0 {
		return TicketKindPaid
	}
	return TicketKindFree
}
