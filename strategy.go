package plc_bridge

import (
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"time"
)

var ErrOverMaxCount = errors.New("over max count")

// ScheduleStrategy 批次对账循环的等待策略
type ScheduleStrategy interface {
	Next() (time.Duration, error)
}

type FixedScheduleStrategy struct {
	// 固定时间间隔
	interval time.Duration
	// 最大调度次数，0表示不限制
	maxCount int
	// 当前已经调度的次数
	counter int
}

func NewFixedScheduleStrategy(interval time.Duration, maxCount int) *FixedScheduleStrategy {
	return &FixedScheduleStrategy{
		interval: interval,
		maxCount: maxCount,
	}
}

func (s *FixedScheduleStrategy) Next() (time.Duration, error) {
	if s.maxCount > 0 && s.counter >= s.maxCount {
		return 0, ErrOverMaxCount
	}
	s.counter++
	return s.interval, nil
}

// CronStrategy 按cron表达式计算距下次执行的时长
type CronStrategy struct {
	schedule cron.Schedule
	now      func() time.Time
}

func NewCronStrategy(spec string) (*CronStrategy, error) {
	schedule, err := _const.ParseSchedule(spec)
	if err != nil {
		return nil, markConfiguration(err)
	}

	return &CronStrategy{schedule: schedule, now: time.Now}, nil
}

func (s *CronStrategy) Next() (time.Duration, error) {
	now := s.now()
	next := s.schedule.Next(now)
	if next.IsZero() {
		return 0, ErrOverMaxCount
	}
	return next.Sub(now), nil
}
