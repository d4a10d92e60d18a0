package factory

import (
	"encoding/hex"

	"tripvault/core/types"
	"tripvault/native/booking"
)

// EventTypePropertyCreated marks the registration of a new escrow instance.
const EventTypePropertyCreated = "factory.property_created"

// NewPropertyCreatedEvent returns the canonical creation payload.
func NewPropertyCreatedEvent(p *booking.Property) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["listingId"] = p.ListingID
		attrs["address"] = hex.EncodeToString(p.Address[:])
		attrs["host"] = hex.EncodeToString(p.Host[:])
	}
	return &types.Event{Type: EventTypePropertyCreated, Attributes: attrs}
}
