package dispatcher

import "testing"

type recordingReplier struct {
	lines []string
}

func (r *recordingReplier) Reply(line string) {
	r.lines = append(r.lines, line)
}

func TestTriggerCallsRegisteredHandler(t *testing.T) {
	d := New(nil)
	var gotArgs []string
	d.Register("SOCKSERV-PX", func(session Replier, args ...string) bool {
		gotArgs = args
		session.Reply("PX Success")
		return true
	})

	rep := &recordingReplier{}
	if !d.Trigger("SOCKSERV-PX", rep, "10", "20", "ff8800") {
		t.Fatalf("Trigger returned false for registered handler")
	}
	if len(gotArgs) != 3 || gotArgs[0] != "10" {
		t.Fatalf("handler received %v", gotArgs)
	}
	if len(rep.lines) != 1 || rep.lines[0] != "PX Success" {
		t.Fatalf("handler did not reply via session: %v", rep.lines)
	}
}

func TestTriggerUnknownNameReturnsFalse(t *testing.T) {
	d := New(nil)
	if d.Trigger("SOCKSERV-NOPE", NopReplier{}) {
		t.Fatalf("Trigger on unregistered name should return false")
	}
}

func TestLastWriterWins(t *testing.T) {
	d := New(nil)
	d.Register("X", func(session Replier, args ...string) bool { return false })
	d.Register("X", func(session Replier, args ...string) bool { return true })
	if !d.Trigger("X", NopReplier{}) {
		t.Fatalf("expected second registration to win")
	}
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	d := New(nil)
	d.Register("BOOM", func(session Replier, args ...string) bool { panic("nope") })
	if d.Trigger("BOOM", NopReplier{}) {
		t.Fatalf("expected panicking handler to yield false, not crash the test")
	}
}

func TestTriggerWithNilSessionUsesNopReplier(t *testing.T) {
	d := New(nil)
	called := false
	d.Register("Y", func(session Replier, args ...string) bool {
		session.Reply("ignored")
		called = true
		return true
	})
	if !d.Trigger("Y", nil) {
		t.Fatalf("expected handler to run with nil session")
	}
	if !called {
		t.Fatalf("handler did not run")
	}
}
