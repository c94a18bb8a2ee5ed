package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_Coalesces(t *testing.T) {
	n := newNotifier()
	ch, cancel := n.Subscribe("u1")
	defer cancel()

	n.Notify("u1")
	n.Notify("u1")
	n.Notify("u2")

	<-ch
	select {
	case <-ch:
		t.Fatal("wake-ups should coalesce")
	default:
	}
}

func TestNotifier_CancelIsIdempotent(t *testing.T) {
	n := newNotifier()
	_, cancel := n.Subscribe("u1")
	_, cancel2 := n.Subscribe("u1")
	assert.Equal(t, 2, n.Subscribers("u1"))

	cancel()
	cancel()
	assert.Equal(t, 1, n.Subscribers("u1"))

	n.Evict("u1")
	assert.Zero(t, n.Subscribers("u1"))
	assert.NotPanics(t, cancel2)
	assert.NotPanics(t, func() { n.Notify("u1") })
}
