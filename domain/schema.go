package domain

import (
	"github.com/TimeWtr/plc_bridge/const"
)

// FieldSpec 协议字段定义
type FieldSpec struct {
	// Key 配置中的逻辑字段名
	Key string
	// Wire 作业记录中的列名，默认等于Key
	Wire string
	// Width 定长宽度
	Width int
}

// MessageSchema 一种消息的字段表，Fields保持配置中的声明顺序
type MessageSchema struct {
	Type     _const.MessageType
	Filename string
	Fields   []FieldSpec
}

func (m MessageSchema) Lookup(key string) (FieldSpec, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (m MessageSchema) Keys() []string {
	keys := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Width 所有字段宽度之和
func (m MessageSchema) Width() int {
	total := 0
	for _, f := range m.Fields {
		total += f.Width
	}
	return total
}

// ProtocolSchema 启动时加载一次，运行期只读
type ProtocolSchema struct {
	messages map[_const.MessageType]MessageSchema
}

func NewProtocolSchema(schemas ...MessageSchema) ProtocolSchema {
	p := ProtocolSchema{messages: make(map[_const.MessageType]MessageSchema, len(schemas))}
	for _, s := range schemas {
		fields := make([]FieldSpec, len(s.Fields))
		copy(fields, s.Fields)
		for i := range fields {
			if fields[i].Wire == "" {
				fields[i].Wire = fields[i].Key
			}
		}
		s.Fields = fields
		p.messages[s.Type] = s
	}
	return p
}

// Message 返回字段表的副本
func (p ProtocolSchema) Message(t _const.MessageType) (MessageSchema, bool) {
	s, ok := p.messages[t]
	if !ok {
		return MessageSchema{}, false
	}
	fields := make([]FieldSpec, len(s.Fields))
	copy(fields, s.Fields)
	s.Fields = fields
	return s, true
}
