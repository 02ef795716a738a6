package _const

import "time"

const (
	// SentinelScheduleIndex 批次行的ScheduleIndex缺失或非数字时使用的排序值，排到队尾
	SentinelScheduleIndex = 9999
	// FallbackFieldWidth 协议表中找不到字段定义时使用的宽度
	FallbackFieldWidth = 10
	// DefaultSendTimeout 出站连接和写入的超时
	DefaultSendTimeout = 3 * time.Second
	// DefaultAck 每条入站消息的确认内容，发送时追加\x00
	DefaultAck = "Data received"
	// MinAcceptDelay accept失败后的首次重试间隔
	MinAcceptDelay = 5 * time.Millisecond
	// MaxAcceptDelay accept失败重试间隔的上限
	MaxAcceptDelay = time.Second
	// DefaultLimiter 同时进行的出站发送数量
	DefaultLimiter = 4
	// DefaultIngestSchedule 批次文件的轮询周期
	DefaultIngestSchedule = "@every 40s"
	// DefaultJobInfoPrefix jobInfo消息前缀
	DefaultJobInfoPrefix = "job:"
	// DefaultBoxInfoPrefix boxInfo消息前缀
	DefaultBoxInfoPrefix = "Job:"
	// LogTimeLayout 审计和完工记录使用的时间格式
	LogTimeLayout = "2006-01-02_15:04:05"
	// FileTimeLayout 归档文件名使用的时间格式
	FileTimeLayout = "2006-01-02T15-04-05"
)
