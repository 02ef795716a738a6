package plc_bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_const "github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
)

func TestFileJobStoreMissingDocumentIsEmpty(t *testing.T) {
	s := NewFileJobStore(filepath.Join(t.TempDir(), "data", "ValidJobs.json"))
	jobs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFileJobStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "ValidJobs.json")
	s := NewFileJobStore(path)

	a := domain.NewJobRecord("A", 1, _const.JobStatusCurrent)
	a.Set(domain.FieldMaterialID, "M1")
	b := domain.NewJobRecord("B", 2, _const.JobStatusPending)
	require.NoError(t, s.Save(ctx, []domain.JobRecord{a, b}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.JobRecord{a, b}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileJobStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ValidJobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileJobStore(path).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreIO))
}

func TestGuardSerializes(t *testing.T) {
	g := NewGuard()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestGuardHonoursContext(t *testing.T) {
	g := NewGuard()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
