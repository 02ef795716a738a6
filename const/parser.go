package _const

import (
	"fmt"
	"github.com/robfig/cron/v3"
	"strings"
)

// Parser 批次轮询周期解析器，支持标准五段表达式、可选秒字段和@every描述符
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule 空表达式使用DefaultIngestSchedule
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultIngestSchedule
	}

	schedule, err := Parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid ingestion schedule %q: %w", spec, err)
	}

	return schedule, nil
}
