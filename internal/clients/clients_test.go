package clients

import (
	"testing"
	"time"
)

func TestEnsureLazilyCreatesWithDefaultPPS(t *testing.T) {
	r := New(2, 1000)
	s := r.Ensure("1.2.3.4")
	if s.PPS() != 2 {
		t.Fatalf("PPS() = %v, want 2", s.PPS())
	}
	if s.Godmode() {
		t.Fatalf("new session should not be in godmode")
	}
}

func TestGodmodeWaivesCooldown(t *testing.T) {
	r := New(1, 1000)
	ip := "1.1.1.1"
	r.MarkWrite(ip)
	r.SetGodmode(ip, true)
	if d := r.CooldownRemaining(ip); d != 0 {
		t.Fatalf("CooldownRemaining with godmode = %v, want 0", d)
	}
}

func TestCooldownRemainingDecreasesOverTime(t *testing.T) {
	r := New(2, 1000) // 2 pps -> 500ms interval
	ip := "2.2.2.2"
	r.MarkWrite(ip)
	d := r.CooldownRemaining(ip)
	if d <= 0 {
		t.Fatalf("expected positive cooldown immediately after write, got %v", d)
	}
	if d > 500*time.Millisecond+10*time.Millisecond {
		t.Fatalf("cooldown %v exceeds configured interval", d)
	}
	time.Sleep(50 * time.Millisecond)
	if d2 := r.CooldownRemaining(ip); d2 >= d {
		t.Fatalf("cooldown did not decrease over time: %v then %v", d, d2)
	}
}

func TestDisconnectFlipsConnectedBit(t *testing.T) {
	r := New(1, 1)
	ip := "3.3.3.3"
	r.Connect(ip)
	s, _ := r.Get(ip)
	if !s.Connected() {
		t.Fatalf("expected connected after Connect")
	}
	r.Disconnect(ip)
	if s.Connected() {
		t.Fatalf("expected disconnected after Disconnect")
	}
}

func TestRegistryNeverDestroysSessions(t *testing.T) {
	r := New(1, 1)
	r.Ensure("a")
	r.Ensure("b")
	r.Disconnect("a")
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (sessions persist after disconnect)", r.Count())
	}
}
