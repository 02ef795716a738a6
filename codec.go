package plc_bridge

import (
	"fmt"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/cockroachdb/errors"
	"strings"
	"time"
)

// Message 解码后的入站消息
type Message struct {
	// Command 第一个token的大写形式
	Command _const.Command
	// Tokens 按空白切分的全部token，包含命令字
	Tokens []string
	// Payload 命令字之后的原始内容
	Payload string
	// Fields 按协议表定长切分的字段，命令没有对应表时为nil
	Fields map[string]string
	Raw    string
}

// layoutField 出站消息中一个固定位置的字段
type layoutField struct {
	// key 协议表中的字段名
	key string
	// wire 协议表没有指定name时使用的作业列名
	wire string
	// next 从Next作业取值
	next bool
	// stamp 时间戳字段
	stamp bool
}

var jobInfoLayout = []layoutField{
	{key: "JobIDCurrent", wire: domain.FieldJobID},
	{key: "MaterialID", wire: domain.FieldMaterialID},
	{key: "LBLNAME", wire: domain.FieldLabelName},
	{key: "LBLBARCODECurrent", wire: domain.FieldLabelBarcode},
	{key: "IMLBARCODECurrent", wire: domain.FieldIMLBarcode},
	{key: "IMLBARCODELOCCurrent", wire: domain.FieldIMLLocation},
	{key: "DesiredYieldCurrent", wire: domain.FieldDesiredYield},
	{key: "JobIDNext", wire: domain.FieldJobID, next: true},
	{key: "LBLBARCODENext", wire: domain.FieldLabelBarcode, next: true},
	{key: "IMLBARCODENext", wire: domain.FieldIMLBarcode, next: true},
	{key: "IMLBARCODELOCNext", wire: domain.FieldIMLLocation, next: true},
	{key: "DesiredYieldNext", wire: domain.FieldDesiredYield, next: true},
	{key: "DateTime", wire: domain.FieldDateTime, stamp: true},
}

var boxInfoLayout = []layoutField{
	{key: "jobID", wire: domain.FieldJobID},
	{key: "MaterialID", wire: domain.FieldMaterialID},
	{key: "LBLBARCODE", wire: domain.FieldLabelBarcode},
	{key: "LBLNAME", wire: domain.FieldLabelName},
	{key: "DateTime", wire: domain.FieldDateTime, stamp: true},
}

type CodecOption func(c *Codec)

func WithJobInfoPrefix(prefix string) CodecOption {
	return func(c *Codec) {
		c.jobInfoPrefix = prefix
	}
}

func WithBoxInfoPrefix(prefix string) CodecOption {
	return func(c *Codec) {
		c.boxInfoPrefix = prefix
	}
}

func WithCodecLogger(logger Logger) CodecOption {
	return func(c *Codec) {
		c.logger = logger
	}
}

// Codec 按协议表编解码定长ASCII消息
type Codec struct {
	schema        domain.ProtocolSchema
	jobInfoPrefix string
	boxInfoPrefix string
	logger        Logger
}

func NewCodec(schema domain.ProtocolSchema, opts ...CodecOption) *Codec {
	c := &Codec{
		schema:        schema,
		jobInfoPrefix: _const.DefaultJobInfoPrefix,
		boxInfoPrefix: _const.DefaultBoxInfoPrefix,
		logger:        NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pad 超长截断，不足在右侧补空格
func Pad(value string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(value) >= width {
		return value[:width]
	}
	return value + strings.Repeat(" ", width-len(value))
}

// Encode 按字段声明顺序拼接，字段之间没有分隔符
func Encode(tag string, fields []domain.FieldSpec, values map[string]string) string {
	var sb strings.Builder
	sb.WriteString(tag)
	for _, f := range fields {
		sb.WriteString(Pad(values[f.Key], f.Width))
	}
	return sb.String()
}

// EncodeMessage 按消息类型的协议表编码，values以字段名为key
func (c *Codec) EncodeMessage(t _const.MessageType, tag string, values map[string]string) (string, error) {
	s, ok := c.schema.Message(t)
	if !ok {
		return "", markConfiguration(errors.Newf("no schema for %s", t))
	}
	return Encode(tag, s.Fields, values), nil
}

// EncodeJobInfo 当前作业和下一作业合成一条jobInfo消息，作业为nil时对应字段全为空格
func (c *Codec) EncodeJobInfo(current, next *domain.JobRecord, now time.Time) string {
	return c.encodeLayout(_const.MessageTypeJobInfo, c.jobInfoPrefix, jobInfoLayout, func(f layoutField) *domain.JobRecord {
		if f.next {
			return next
		}
		return current
	}, now.Format(_const.LogTimeLayout))
}

// EncodeBoxInfo 时间戳格式为"HH  MM  SS"
func (c *Codec) EncodeBoxInfo(job *domain.JobRecord, now time.Time) string {
	stamp := fmt.Sprintf("%02d  %02d  %02d", now.Hour(), now.Minute(), now.Second())
	return c.encodeLayout(_const.MessageTypeBoxInfo, c.boxInfoPrefix, boxInfoLayout, func(layoutField) *domain.JobRecord {
		return job
	}, stamp)
}

func (c *Codec) encodeLayout(t _const.MessageType, tag string, layout []layoutField,
	source func(layoutField) *domain.JobRecord, stamp string) string {
	s, _ := c.schema.Message(t)

	var sb strings.Builder
	sb.WriteString(tag)
	for _, f := range layout {
		width, wire := _const.FallbackFieldWidth, f.wire
		if spec, ok := s.Lookup(f.key); ok {
			width = spec.Width
			if spec.Wire != spec.Key {
				wire = spec.Wire
			}
		} else {
			c.logger.Warn("schema field not found, using fallback width",
				Field{Key: "message", Val: t.String()},
				Field{Key: "field", Val: f.key},
				Field{Key: "width", Val: _const.FallbackFieldWidth})
		}

		var value string
		switch {
		case f.stamp:
			value = stamp
		default:
			if job := source(f); job != nil {
				value = job.Get(wire)
			}
		}
		sb.WriteString(Pad(value, width))
	}
	return sb.String()
}

// Decode 解析入站消息，未知命令不报错，由分发器决定如何处理
// 命令字之后只去掉一个分隔符，定长字段的填充空格原样保留
func (c *Codec) Decode(raw string) (Message, error) {
	body := strings.TrimLeft(strings.TrimRight(raw, "\x00\r\n"), " \t\r\n")
	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return Message{Raw: raw}, ErrEmptyMessage
	}

	payload := body[len(tokens[0]):]
	if payload != "" {
		payload = payload[1:]
	}

	msg := Message{
		Command: _const.Command(strings.ToUpper(tokens[0])),
		Tokens:  tokens,
		Payload: payload,
		Raw:     raw,
	}

	t, ok := msg.Command.MessageType()
	if !ok {
		return msg, nil
	}
	if s, ok := c.schema.Message(t); ok {
		msg.Fields = DecodeFields(s.Fields, msg.Payload)
	}
	return msg, nil
}

// DecodeFields 按宽度依次切分，去掉每个字段尾部的空格，内容不足时后续字段为空串
func DecodeFields(fields []domain.FieldSpec, payload string) map[string]string {
	res := make(map[string]string, len(fields))
	offset := 0
	for _, f := range fields {
		if offset >= len(payload) || f.Width <= 0 {
			res[f.Key] = ""
			continue
		}
		end := min(offset+f.Width, len(payload))
		res[f.Key] = strings.TrimRight(payload[offset:end], " ")
		offset = end
	}
	return res
}
