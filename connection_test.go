package mqttsn

import (
	"testing"
	"time"
)

func TestKeepAliveTimers(t *testing.T) {
	clk := newFakeClock()
	con := NewConnection()
	con.Duration = 60
	con.UpdateActivity(clk.Now())

	clk.Advance(59 * time.Second)
	if con.SendAnotherPing(clk.Now()) {
		t.Fatal("ping due before the keep-alive period")
	}
	clk.Advance(2 * time.Second)
	if !con.SendAnotherPing(clk.Now()) {
		t.Fatal("ping overdue after the keep-alive period")
	}
	con.ResetPing(clk.Now())
	if con.SendAnotherPing(clk.Now()) {
		t.Fatal("ping timer not reset")
	}
}

func TestLostContactAfterFivePeriods(t *testing.T) {
	clk := newFakeClock()
	con := NewConnection()
	con.Duration = 60
	con.UpdateActivity(clk.Now())

	clk.Advance(299 * time.Second)
	if con.LostContact(clk.Now()) {
		t.Fatal("contact lost before the 5x grace window")
	}
	clk.Advance(2 * time.Second)
	if !con.LostContact(clk.Now()) {
		t.Fatal("contact not lost after the 5x grace window")
	}
}

func TestAddressMatch(t *testing.T) {
	con := NewConnection()
	con.SetAddress([]byte{0x0A, 0x0B}, 2)
	if !con.AddressMatch([]byte{0x0A, 0x0B}) {
		t.Fatal("matching address rejected")
	}
	if con.AddressMatch([]byte{0x0A, 0x0C}) {
		t.Fatal("differing address accepted")
	}
	empty := NewConnection()
	if empty.AddressMatch([]byte{0x0A}) {
		t.Fatal("unbound connection must match nothing")
	}
}

func TestWillLengthLimits(t *testing.T) {
	const width = 32
	con := NewConnection()
	long := make([]byte, width-1)
	for i := range long {
		long[i] = 'a'
	}
	if err := con.SetWillTopic(string(long), 1, false, width); err != ErrPayloadTooLarge {
		t.Fatalf("oversized will topic: err=%v", err)
	}
	if err := con.SetWillTopic("d/last", 1, true, width); err != nil {
		t.Fatal(err)
	}
	if err := con.SetWillMessage(long, width); err != ErrPayloadTooLarge {
		t.Fatalf("oversized will message: err=%v", err)
	}
	if err := con.SetWillMessage([]byte("bye"), width); err != nil {
		t.Fatal(err)
	}

	// Clearing the topic drops the message too.
	if err := con.SetWillTopic("", 0, false, width); err != nil {
		t.Fatal(err)
	}
	if con.HasWill() || con.WillMessage() != nil {
		t.Fatal("clearing the will topic must drop the whole will")
	}
}
