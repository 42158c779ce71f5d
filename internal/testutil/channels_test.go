package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForChannel_Closed(t *testing.T) {
	t.Parallel()
	ch := make(chan struct{})
	close(ch)
	WaitForChannel(t, ch, ShortTestTimeout, "closed channel must not block")
}

func TestReceive(t *testing.T) {
	t.Parallel()
	ch := make(chan int, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		ch <- 42
	}()
	assert.Equal(t, 42, Receive(t, ch, DefaultTestTimeout, "value never arrived"))
}
