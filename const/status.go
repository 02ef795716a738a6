package _const

import (
	"fmt"
	"strings"
)

// JobStatus 作业在队列中的生命周期状态
type JobStatus int

const (
	JobStatusUnknown JobStatus = 0x00000000 // 无法识别的状态，不参与状态流转
	JobStatusPending JobStatus = 0x00000001 // 等待排产
	JobStatusCurrent JobStatus = 0x00000002 // 产线正在生产
	JobStatusNext    JobStatus = 0x00000003 // 排在当前作业之后
	JobStatusDone    JobStatus = 0x00000004 // 已完成，下次对账时清除
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusCurrent:
		return "Current"
	case JobStatusNext:
		return "Next"
	case JobStatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Protected Current和Next状态的作业不允许被对账覆盖
func (s JobStatus) Protected() bool {
	return s == JobStatusCurrent || s == JobStatusNext
}

// ParseJobStatus 大小写不敏感
func ParseJobStatus(v string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return JobStatusPending, nil
	case "current":
		return JobStatusCurrent, nil
	case "next":
		return JobStatusNext, nil
	case "done":
		return JobStatusDone, nil
	default:
		return JobStatusUnknown, fmt.Errorf("unknown job status %q", v)
	}
}

func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobStatus) UnmarshalText(b []byte) error {
	// 文档中的未知状态保留为Unknown，不让整份文档加载失败
	status, _ := ParseJobStatus(string(b))
	*s = status
	return nil
}
