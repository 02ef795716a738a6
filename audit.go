package plc_bridge

import (
	"context"
	"encoding/json"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/cockroachdb/errors"
	"path/filepath"
	"strings"
	"sync"
)

// AuditRow 一条审计记录，列名到值
type AuditRow map[string]string

// AuditSink 记录控制器上报的事件
type AuditSink interface {
	Record(ctx context.Context, t _const.MessageType, rows ...AuditRow) error
}

// JSONAuditSink 每种消息一个JSON文件，每次写入覆盖为最新的记录
type JSONAuditSink struct {
	dir    string
	schema domain.ProtocolSchema
	mu     sync.Mutex
}

func NewJSONAuditSink(dir string, schema domain.ProtocolSchema) *JSONAuditSink {
	return &JSONAuditSink{
		dir:    dir,
		schema: schema,
	}
}

// Path 协议表中的文件名优先，扩展名统一换成.json
func (s *JSONAuditSink) Path(t _const.MessageType) string {
	name := t.AuditName()
	if name == "" {
		name = t.String()
	}
	name += ".json"
	if m, ok := s.schema.Message(t); ok && m.Filename != "" {
		name = strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename)) + ".json"
	}
	return filepath.Join(s.dir, name)
}

func (s *JSONAuditSink) Record(ctx context.Context, t _const.MessageType, rows ...AuditRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rows == nil {
		rows = []AuditRow{}
	}

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s audit", t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.Path(t), b)
}
