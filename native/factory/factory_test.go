package factory

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"tripvault/core/events"
	"tripvault/native/booking"
	"tripvault/native/platform"
)

type mockState struct {
	listings   map[string][20]byte
	properties map[string]*booking.Property
	config     *platform.Config
}

func newMockState() *mockState {
	return &mockState{
		listings:   make(map[string][20]byte),
		properties: make(map[string]*booking.Property),
	}
}

func (m *mockState) ListingGet(listingID string) ([20]byte, bool, error) {
	addr, ok := m.listings[listingID]
	return addr, ok, nil
}

func (m *mockState) ListingPut(listingID string, addr [20]byte) error {
	m.listings[listingID] = addr
	return nil
}

func (m *mockState) PropertyPut(p *booking.Property) error {
	if p == nil {
		return fmt.Errorf("nil property")
	}
	m.properties[p.ListingID] = p.Clone()
	return nil
}

func (m *mockState) PlatformConfigGet() (*platform.Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) PlatformConfigPut(cfg *platform.Config) error {
	m.config = cfg.Clone()
	return nil
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type capturingEmitter struct {
	types []string
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.types = append(c.types, evt.EventType())
}

func newTestFactory(t *testing.T) (*Factory, *mockState, [20]byte, *capturingEmitter) {
	t.Helper()
	admin := testAddress(0x01)
	operator := testAddress(0x02)
	state := newMockState()

	registry := platform.NewRegistry(admin)
	registry.SetState(state)
	cfg := &platform.Config{
		Operator: operator,
		Treasury: testAddress(0x03),
		Verifier: testAddress(0x04),
	}
	if err := registry.Initialize(admin, cfg); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	factory := NewFactory(registry)
	factory.SetState(state)
	emitter := &capturingEmitter{}
	factory.SetEmitter(emitter)
	return factory, state, operator, emitter
}

func TestPropertyAddressDeterministic(t *testing.T) {
	first := PropertyAddress("lst-1")
	second := PropertyAddress("lst-1")
	if first != second {
		t.Fatalf("address derivation not deterministic")
	}
	if first == ([20]byte{}) {
		t.Fatalf("derived address must not be zero")
	}
	if PropertyAddress("lst-2") == first {
		t.Fatalf("distinct listings must derive distinct addresses")
	}
	// Surrounding whitespace is not identity.
	if PropertyAddress("  lst-1  ") != first {
		t.Fatalf("listing id should be trimmed before derivation")
	}
}

func TestCreatePropertyMatchesPrecomputedAddress(t *testing.T) {
	factory, state, operator, emitter := newTestFactory(t)
	host := testAddress(0x05)
	delegate := testAddress(0x06)

	expected := PropertyAddress("lst-1")
	property, err := factory.CreateProperty(operator, "lst-1", host, delegate)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if property.Address != expected {
		t.Fatalf("instance address differs from precomputed")
	}
	if property.Host != host || property.PaymentReceiver != host {
		t.Fatalf("host wiring: %+v", property)
	}
	if property.Delegate != delegate {
		t.Fatalf("delegate wiring: %+v", property)
	}
	if stored, ok := state.listings["lst-1"]; !ok || stored != expected {
		t.Fatalf("listing index not written")
	}
	if _, ok := state.properties["lst-1"]; !ok {
		t.Fatalf("property not persisted")
	}
	if len(emitter.types) != 1 || emitter.types[0] != EventTypePropertyCreated {
		t.Fatalf("expected creation event, got %v", emitter.types)
	}
}

func TestCreatePropertyValidations(t *testing.T) {
	factory, _, operator, _ := newTestFactory(t)
	host := testAddress(0x05)

	if _, err := factory.CreateProperty(testAddress(0x09), "lst-1", host, [20]byte{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-operator create: %v", err)
	}
	if _, err := factory.CreateProperty(operator, "   ", host, [20]byte{}); !errors.Is(err, ErrEmptyListing) {
		t.Fatalf("expected empty listing, got %v", err)
	}
	if _, err := factory.CreateProperty(operator, "lst-1", [20]byte{}, [20]byte{}); !errors.Is(err, ErrZeroHost) {
		t.Fatalf("expected zero host, got %v", err)
	}

	if _, err := factory.CreateProperty(operator, "lst-1", host, [20]byte{}); err != nil {
		t.Fatalf("create property: %v", err)
	}
	if _, err := factory.CreateProperty(operator, "lst-1", host, [20]byte{}); !errors.Is(err, ErrListingExists) {
		t.Fatalf("expected listing exists, got %v", err)
	}
	// The trimmed id refers to the same listing.
	if _, err := factory.CreateProperty(operator, " lst-1 ", host, [20]byte{}); !errors.Is(err, ErrListingExists) {
		t.Fatalf("expected listing exists for trimmed id, got %v", err)
	}
}
