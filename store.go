package plc_bridge

import (
	"context"
	"encoding/json"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/TimeWtr/plc_bridge/repository"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
	"io/fs"
	"os"
	"path/filepath"
)

// FileJobStore 作业列表保存为一份JSON数组文档
type FileJobStore struct {
	path string
}

func NewFileJobStore(path string) repository.JobStore {
	return &FileJobStore{path: path}
}

func (f *FileJobStore) Path() string {
	return f.path
}

func (f *FileJobStore) Load(ctx context.Context) ([]domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.JobRecord{}, nil
	}
	if err != nil {
		return nil, markStoreIO(errors.Wrapf(err, "read %s", f.path))
	}

	jobs := []domain.JobRecord{}
	if len(b) == 0 {
		return jobs, nil
	}
	if err = json.Unmarshal(b, &jobs); err != nil {
		return nil, markStoreIO(errors.Wrapf(err, "parse %s", f.path))
	}

	return jobs, nil
}

// Save 整体替换文档
func (f *FileJobStore) Save(ctx context.Context, jobs []domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if jobs == nil {
		jobs = []domain.JobRecord{}
	}
	b, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return markStoreIO(errors.Wrap(err, "encode jobs"))
	}

	return writeFileAtomic(f.path, b)
}

// writeFileAtomic 先写同目录下的临时文件再rename，读者不会看到写了一半的文件
func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return markStoreIO(errors.Wrapf(err, "create %s", dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return markStoreIO(errors.Wrap(err, "create temp file"))
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return markStoreIO(errors.Wrapf(err, "write %s", tmp.Name()))
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return markStoreIO(errors.Wrapf(err, "sync %s", tmp.Name()))
	}
	if err = tmp.Close(); err != nil {
		return markStoreIO(errors.Wrapf(err, "close %s", tmp.Name()))
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return markStoreIO(errors.Wrapf(err, "replace %s", path))
	}

	return nil
}

// Guard 作业文档和完工记录共用的全局互斥区，所有读-改-写都在Do中执行
type Guard struct {
	sem *semaphore.Weighted
}

func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Do 等待锁时响应ctx取消，fn不可重入调用Do
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	return fn(ctx)
}
