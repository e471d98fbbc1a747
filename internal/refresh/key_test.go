package refresh

import (
	"testing"
	"time"
)

func TestBumpIncrements(t *testing.T) {
	var k Key
	if k.Value() != 0 {
		t.Fatalf("zero key should start at 0")
	}
	if got := k.Bump(); got != 1 {
		t.Fatalf("bump = %d, want 1", got)
	}
	k.Bump()
	if k.Value() != 2 {
		t.Fatalf("value = %d, want 2", k.Value())
	}
}

func TestSubscribeCoalescesToLatest(t *testing.T) {
	var k Key
	ch, cancel := k.Subscribe()
	defer cancel()

	k.Bump()
	k.Bump()
	k.Bump()

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("got %d, want latest value 3", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("no notification")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra notification %d", v)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	var k Key
	ch, cancel := k.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	k.Bump()
}
