package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_ConcurrencyCap(t *testing.T) {
	l := NewLimiter(0, 2)

	r1, err := l.Acquire()
	require.NoError(t, err)
	r2, err := l.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, l.InFlight())

	_, err = l.Acquire()
	assert.ErrorIs(t, err, ErrAtCapacity)

	r1()
	r1()
	assert.Equal(t, 1, l.InFlight())

	r3, err := l.Acquire()
	require.NoError(t, err)
	r2()
	r3()
	assert.Zero(t, l.InFlight())
}

func TestLimiter_Rate(t *testing.T) {
	l := NewLimiter(6, 0)

	release, err := l.Acquire()
	require.NoError(t, err)
	release()

	_, err = l.Acquire()
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLimiter_RateRejectionFreesSlot(t *testing.T) {
	l := NewLimiter(6, 1)

	release, err := l.Acquire()
	require.NoError(t, err)
	release()

	_, err = l.Acquire()
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, l.InFlight())
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	release, err := l.Acquire()
	require.NoError(t, err)
	release()
	assert.Zero(t, l.InFlight())
}
