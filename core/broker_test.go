package core

import (
	"errors"
	"testing"

	"piobroker/errcode"
)

func TestNewBrokerClaimsPeripheralsOnce(t *testing.T) {
	_, hw := newTestBroker(t)

	if _, err := NewBroker(hw.peripherals()); err != ErrPeripheralsTaken {
		t.Fatalf("second NewBroker: got %v, want ErrPeripheralsTaken", err)
	}
}

func TestInitIsFatalOnSecondClaim(t *testing.T) {
	_, hw := newTestBroker(t)

	resets := 0
	SetResetHandler(func() { resets++ })
	defer SetResetHandler(nil)

	defer func() {
		if recover() == nil {
			t.Error("Init did not halt on a second claim")
		}
		if resets != 1 {
			t.Errorf("reset handler ran %d times, want 1", resets)
		}
	}()
	Init(hw.peripherals())
}

func TestNewBrokerRejectsMissingPeripherals(t *testing.T) {
	releasePeripherals()
	t.Cleanup(releasePeripherals)

	p := newBoard().peripherals()
	p.PIO[1] = nil
	if _, err := NewBroker(p); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("got %v, want invalid_params", err)
	}
	// A rejected call must not consume the one-time claim.
	if _, err := NewBroker(newBoard().peripherals()); err != nil {
		t.Fatalf("NewBroker after rejection: %v", err)
	}
}

func TestCheckoutCheckin(t *testing.T) {
	b, _ := newTestBroker(t)

	timer, err := b.CheckoutTimer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Checkout(ResourceTimer); err != ErrAlreadyCheckedOut {
		t.Errorf("double checkout: got %v", err)
	}
	if b.State(ResourceTimer) != CheckedOut {
		t.Error("timer should be checked out")
	}
	if err := b.CheckinTimer(timer); err != nil {
		t.Fatal(err)
	}
	if err := b.CheckinTimer(timer); err != ErrAlreadyPresent {
		t.Errorf("double checkin: got %v", err)
	}
	if _, err := b.CheckoutTimer(); err != nil {
		t.Errorf("checkout after checkin: %v", err)
	}
}

func TestCheckinRejectsForeignResource(t *testing.T) {
	b, _ := newTestBroker(t)

	p3, _ := b.CheckoutPin(3)
	p4, _ := b.CheckoutPin(4)

	if err := b.Checkin(GPIOResource(4), p3); err != ErrResourceMismatch {
		t.Errorf("pin 3 into slot 4: got %v", err)
	}
	if err := b.CheckinPin(nil); err != ErrResourceMismatch {
		t.Errorf("nil pin: got %v", err)
	}
	if err := b.CheckinPin(p4); err != nil {
		t.Errorf("pin 4: %v", err)
	}
	if err := b.CheckinPin(p3); err != nil {
		t.Errorf("pin 3: %v", err)
	}
}

func TestUnknownResource(t *testing.T) {
	b, _ := newTestBroker(t)

	if _, err := b.Checkout(NumResources); err != ErrUnknownResource {
		t.Errorf("Checkout: got %v", err)
	}
	if _, err := b.CheckoutPin(30); err != ErrUnknownResource {
		t.Errorf("CheckoutPin(30): got %v", err)
	}
	if _, err := b.CheckoutPIO(2); err != ErrUnknownResource {
		t.Errorf("CheckoutPIO(2): got %v", err)
	}
	if err := b.Checkin(NumResources, nil); err != ErrUnknownResource {
		t.Errorf("Checkin: got %v", err)
	}
}

func TestCheckoutFreePIOSkipsBusyBlocks(t *testing.T) {
	b, _ := newTestBroker(t)

	first, err := b.CheckoutFreePIO()
	if err != nil || first.Index() != PIO0 {
		t.Fatalf("first free block: %v, %v", first, err)
	}
	pins, clocks := oneSlot(2)
	if _, err := first.Install(blink, 1, pins, clocks); err != nil {
		t.Fatal(err)
	}
	if err := b.CheckinPIO(first); err != nil {
		t.Fatal(err)
	}

	// PIO0 is available again but still running a program.
	second, err := b.CheckoutFreePIO()
	if err != nil || second.Index() != PIO1 {
		t.Fatalf("second free block: %v, %v", second, err)
	}
	if _, err := b.CheckoutFreePIO(); err != ErrNoFreePIO {
		t.Errorf("no free block left: got %v", err)
	}
	if b.State(ResourcePIO0) != Available {
		t.Error("busy PIO0 should not have been taken")
	}
}

func TestStatusSnapshot(t *testing.T) {
	b, _ := newTestBroker(t)

	b.CheckoutUSB()
	b.CheckoutPin(7)
	status := b.Status()
	for id, s := range status {
		want := Available
		if ResourceID(id) == ResourceUSB || ResourceID(id) == GPIOResource(7) {
			want = CheckedOut
		}
		if s != want {
			t.Errorf("%v: %v, want %v", ResourceID(id), s, want)
		}
	}
}

func TestPIOStatusWithoutCheckout(t *testing.T) {
	b, _ := newTestBroker(t)

	p := checkoutPIO(t, b, PIO1)
	pins, clocks := oneSlot(5)
	if _, err := p.Install(blink, 1, pins, clocks); err != nil {
		t.Fatal(err)
	}
	states, ok := b.PIOStatus(PIO1)
	if !ok || states[0] != SMStopped || states[1] != SMUninitialized {
		t.Errorf("PIOStatus = %v, %v", states, ok)
	}
	if _, ok := b.PIOStatus(2); ok {
		t.Error("block 2 should not exist")
	}
}

func TestResourceIDString(t *testing.T) {
	cases := map[ResourceID]string{
		ResourceTimer:    "timer",
		GPIOResource(0):  "gpio0",
		GPIOResource(29): "gpio29",
		ResourcePIO0:     "pio0",
		ResourcePIO1:     "pio1",
		ResourceUSB:      "usb",
		NumResources:     "resource(34)",
	}
	for id, want := range cases {
		if got := id.String(); got != want {
			t.Errorf("%d: %q, want %q", id, got, want)
		}
	}
	if n, ok := GPIOResource(12).IsGPIO(); !ok || n != 12 {
		t.Errorf("IsGPIO = %d, %v", n, ok)
	}
	if _, ok := ResourceUSB.IsGPIO(); ok {
		t.Error("usb is not a gpio")
	}
}

func TestErrorsMatchCodes(t *testing.T) {
	b, _ := newTestBroker(t)
	b.CheckoutUSB()
	_, err := b.CheckoutUSB()
	if !errors.Is(err, errcode.AlreadyCheckedOut) {
		t.Errorf("got %v", err)
	}
}
