package plc_bridge

import (
	"context"
	"encoding/csv"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CSVSource 排产系统导出的批次文件，处理后归档到processed或error目录
type CSVSource struct {
	path         string
	processedDir string
	errorDir     string
	now          func() time.Time
}

func NewCSVSource(dir, filename, processedDir, errorDir string) *CSVSource {
	return &CSVSource{
		path:         filepath.Join(dir, filename),
		processedDir: processedDir,
		errorDir:     errorDir,
		now:          time.Now,
	}
}

func (s *CSVSource) Path() string {
	return s.path
}

// Read 文件不存在时返回false，第一行为列名
func (s *CSVSource) Read(ctx context.Context) ([]map[string]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, markStoreIO(errors.Wrapf(err, "open %s", s.path))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]string{}, true, nil
	}
	if err != nil {
		return nil, true, markMalformed(errors.Wrapf(err, "read header of %s", s.path))
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, true, markMalformed(errors.Wrapf(err, "parse %s", s.path))
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, true, nil
}

// Archive 移动到processed目录，failed为true时移动到error目录，文件名追加时间戳
func (s *CSVSource) Archive(failed bool) (string, error) {
	dir := s.processedDir
	if failed {
		dir = s.errorDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", markStoreIO(errors.Wrapf(err, "create %s", dir))
	}

	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	target := filepath.Join(dir, strings.TrimSuffix(base, ext)+"_"+s.now().Format(_const.FileTimeLayout)+ext)
	if err := os.Rename(s.path, target); err != nil {
		return "", markStoreIO(errors.Wrapf(err, "move %s", s.path))
	}
	return target, nil
}

type IngestorOption func(i *Ingestor)

func WithStrategy(strategy ScheduleStrategy) IngestorOption {
	return func(i *Ingestor) {
		i.strategy = strategy
	}
}

// WithWatch 监听批次目录，文件写入后经过debounce立即对账
func WithWatch(debounce time.Duration) IngestorOption {
	return func(i *Ingestor) {
		i.watch = true
		i.debounce = debounce
	}
}

func WithIngestLogger(logger Logger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

// Ingestor 定时读取批次文件并交给Reconciler
type Ingestor struct {
	source     *CSVSource
	reconciler *Reconciler
	strategy   ScheduleStrategy
	watch      bool
	debounce   time.Duration
	logger     Logger
}

func NewIngestor(source *CSVSource, reconciler *Reconciler, opts ...IngestorOption) (*Ingestor, error) {
	i := &Ingestor{
		source:     source,
		reconciler: reconciler,
		debounce:   500 * time.Millisecond,
		logger:     NewNopLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.strategy == nil {
		strategy, err := NewCronStrategy(_const.DefaultIngestSchedule)
		if err != nil {
			return nil, err
		}
		i.strategy = strategy
	}
	return i, nil
}

// RunOnce 没有批次文件时返回false
// 文件格式错误归档到error目录；配置或存储错误时保留文件等待下一轮
func (i *Ingestor) RunOnce(ctx context.Context) (ReconcileReport, bool, error) {
	rows, ok, err := i.source.Read(ctx)
	if !ok {
		return ReconcileReport{}, false, err
	}
	if err != nil {
		if errors.Is(err, ErrMalformedInput) {
			i.archive(true)
		}
		return ReconcileReport{}, true, err
	}

	report, err := i.reconciler.Reconcile(ctx, rows)
	if err != nil {
		return report, true, err
	}

	i.archive(false)
	return report, true, nil
}

func (i *Ingestor) archive(failed bool) {
	target, err := i.source.Archive(failed)
	if err != nil {
		i.logger.Error("failed to archive batch file", Field{Key: "file", Val: i.source.Path()}, Field{Key: "err", Val: err})
		return
	}
	i.logger.Info("batch file archived", Field{Key: "to", Val: target}, Field{Key: "failed", Val: failed})
}

// Run 按策略周期对账，开启监听时文件变化也会触发，ctx取消后返回
func (i *Ingestor) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	if i.watch {
		watcher, err := i.newWatcher()
		if err != nil {
			i.logger.Warn("failed to watch batch directory, polling only", Field{Key: "err", Val: err})
		} else {
			defer watcher.Close()
			events = watcher.Events
			go func() {
				for err := range watcher.Errors {
					i.logger.Warn("batch watcher error", Field{Key: "err", Val: err})
				}
			}()
		}
	}

	interval, err := i.strategy.Next()
	if err != nil {
		return err
	}
	ticker := time.NewTimer(interval)
	defer ticker.Stop()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(i.source.Path()) ||
				!ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			debounce.Reset(i.debounce)
		case <-debounce.C:
			i.runOnce(ctx)
		case <-ticker.C:
			i.runOnce(ctx)
			interval, err = i.strategy.Next()
			if err != nil {
				if errors.Is(err, ErrOverMaxCount) {
					return nil
				}
				return err
			}
			ticker.Reset(interval)
		}
	}
}

func (i *Ingestor) newWatcher() (*fsnotify.Watcher, error) {
	dir := filepath.Dir(i.source.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return watcher, nil
}

func (i *Ingestor) runOnce(ctx context.Context) {
	report, found, err := i.RunOnce(ctx)
	switch {
	case err != nil:
		i.logger.Error("batch ingestion failed", Field{Key: "file", Val: i.source.Path()}, Field{Key: "err", Val: err})
	case found:
		i.logger.Info("batch ingested", Field{Key: "file", Val: i.source.Path()}, Field{Key: "rows", Val: report.Rows})
	default:
		i.logger.Debug("no batch file", Field{Key: "file", Val: i.source.Path()})
	}
}
