package plc_bridge

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_const "github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
)

func TestPendingQueueOrder(t *testing.T) {
	jobs := []domain.JobRecord{
		domain.NewJobRecord("t1", 7, _const.JobStatusPending),
		domain.NewJobRecord("t2", 3, _const.JobStatusPending),
		domain.NewJobRecord("t3", 1, _const.JobStatusDone),
		domain.NewJobRecord("t4", 3, _const.JobStatusPending),
		{JobID: "t5", ScheduleIndex: "x", Status: _const.JobStatusPending},
	}

	h := newPendingQueue(jobs, func(j domain.JobRecord) bool {
		return j.Status == _const.JobStatusPending
	})

	var order []string
	for pos := h.next(); pos >= 0; pos = h.next() {
		order = append(order, jobs[pos].JobID)
	}
	assert.Equal(t, []string{"t2", "t4", "t1"}, order)
}

func TestLocalCache(t *testing.T) {
	c := NewLocalCache(2)
	c.Set("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Del("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestFixedScheduleStrategy(t *testing.T) {
	s := NewFixedScheduleStrategy(time.Second, 2)
	for i := 0; i < 2; i++ {
		d, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, time.Second, d)
	}
	_, err := s.Next()
	assert.ErrorIs(t, err, ErrOverMaxCount)

	unlimited := NewFixedScheduleStrategy(time.Millisecond, 0)
	for i := 0; i < 10; i++ {
		_, err = unlimited.Next()
		require.NoError(t, err)
	}
}

func TestCronStrategy(t *testing.T) {
	s, err := NewCronStrategy("@every 40s")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	d, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, d)

	_, err = NewCronStrategy("every now and then")
	assert.True(t, errors.Is(err, ErrConfiguration))
}
