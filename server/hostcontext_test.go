package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrimsonAS/aliasbridge/hostapi"
)

func TestHostContextWorker(t *testing.T) {
	h := NewHostContext(nil)
	defer h.Stop()

	v, err := h.Do(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = h.Do(func() (interface{}, error) { return nil, boom })
	assert.Equal(t, boom, err)

	_, err = h.Do(func() (interface{}, error) { panic("kaboom") })
	require.Error(t, err)
	assert.Equal(t, "Panic", hostapi.ErrorKind(err))
	assert.NotNil(t, hostapi.TracebackOf(err))

	h.Stop()
	_, err = h.Do(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrHostStopped)
}

func TestHostContextTaskQueue(t *testing.T) {
	q := NewTaskQueue()
	h := NewHostContext(q)
	defer h.Stop()

	// The host's own loop
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-q.Signal():
				q.RunPending()
			case <-stop:
				return
			}
		}
	}()

	v, err := h.Do(func() (interface{}, error) { return "on host", nil })
	require.NoError(t, err)
	assert.Equal(t, "on host", v)

	q.Close()
	_, err = h.Do(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrHostStopped)
}

func TestTaskQueueRunPending(t *testing.T) {
	q := NewTaskQueue()
	ran := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Submit(func() { ran++ }))
	}
	select {
	case <-q.Signal():
	case <-time.After(time.Second):
		t.Fatal("no signal")
	}
	assert.Equal(t, 3, q.RunPending())
	assert.Equal(t, 3, ran)
	assert.Equal(t, 0, q.RunPending())
}
