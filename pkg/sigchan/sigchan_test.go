package sigchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_CoalescesAndUnsubscribes(t *testing.T) {
	b := New()
	c, cancel := b.Subscribe()

	b.Emit()
	b.Emit()
	<-c
	select {
	case <-c:
		t.Fatal("expected coalesced notification")
	default:
	}

	cancel()
	cancel()
	_, open := <-c
	assert.False(t, open)
	b.Emit()
}

func TestBroadcaster_CloseEndsSubscriptions(t *testing.T) {
	b := New()
	c1, cancel1 := b.Subscribe()
	c2, _ := b.Subscribe()

	b.Close()
	b.Close()
	_, open := <-c1
	assert.False(t, open)
	_, open = <-c2
	assert.False(t, open)
	cancel1()

	late, cancelLate := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
	cancelLate()
	b.Emit()
}
