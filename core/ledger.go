package core

import (
	"tripvault/core/events"
	"tripvault/native/booking"
	"tripvault/native/delegate"
	"tripvault/native/factory"
	"tripvault/native/platform"
	"tripvault/state"
	"tripvault/storage"
)

// Ledger wires the escrow modules to a shared state store. It is the
// in-process equivalent of a node: one serially-ordered writer over one
// database.
type Ledger struct {
	Store     *state.Store
	Platform  *platform.Registry
	Factory   *factory.Factory
	Engine    *booking.Engine
	Delegates *delegate.Registry
}

// NewLedger builds a fully wired ledger over the supplied database. The admin
// identity owns the platform registry and the delegate role; chainID feeds
// the typed-data domain verified by every escrow instance.
func NewLedger(db storage.Database, admin [20]byte, chainID uint64) *Ledger {
	store := state.NewStore(db)

	registry := platform.NewRegistry(admin)
	registry.SetState(store)

	instances := factory.NewFactory(registry)
	instances.SetState(store)

	engine := booking.NewEngine(registry, chainID)
	engine.SetState(store)

	delegates := delegate.NewRegistry(admin)
	delegates.SetState(store)
	delegates.SetEngine(engine)
	engine.SetDelegates(delegates)

	return &Ledger{
		Store:     store,
		Platform:  registry,
		Factory:   instances,
		Engine:    engine,
		Delegates: delegates,
	}
}

// SetEmitter routes every module's events through the supplied emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	l.Platform.SetEmitter(emitter)
	l.Factory.SetEmitter(emitter)
	l.Engine.SetEmitter(emitter)
	l.Delegates.SetEmitter(emitter)
}
