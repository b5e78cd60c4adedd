package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/dmitrijs2005/chunkstore/internal/server/metrics"
	"github.com/dmitrijs2005/chunkstore/internal/server/models"
	"github.com/dmitrijs2005/chunkstore/internal/server/repositories/uploads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeArchiver struct {
	mu      sync.Mutex
	put     map[string][]byte
	deleted []string
	putErr  error
	delErr  error
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{put: map[string][]byte{}}
}

func (a *fakeArchiver) Put(ctx context.Context, key, path string) error {
	if a.putErr != nil {
		return a.putErr
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put[key] = b
	return nil
}

func (a *fakeArchiver) Delete(ctx context.Context, key string) error {
	if a.delErr != nil {
		return a.delErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, key)
	return nil
}

type testEnv struct {
	svc  *Service
	root string
	repo *uploads.MemoryRepository
	arch *fakeArchiver
	reg  *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	repo := uploads.NewMemoryRepository()
	arch := newFakeArchiver()
	reg := prometheus.NewRegistry()

	svc, err := NewService(Options{Root: root, Uploads: repo, Archiver: arch, Metrics: metrics.New(reg)})
	require.NoError(t, err)
	return &testEnv{svc: svc, root: svc.Root(), repo: repo, arch: arch, reg: reg}
}

// counter returns the value of the counter name whose labels include want.
func (e *testEnv) counter(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := e.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func intp(v int) *int { return &v }

func (e *testEnv) send(t *testing.T, sub, name string, idx, total int, data string) string {
	t.Helper()
	final, err := e.svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: sub, Name: name, Index: idx, Total: intp(total), Body: strings.NewReader(data),
	})
	require.NoError(t, err)
	return final
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// --- receive & assemble ---

func TestReceive_SingleChunk(t *testing.T) {
	e := newTestEnv(t)

	final, err := e.svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: "sub1", Name: "report.pdf", Index: 5, Body: strings.NewReader("hello"),
	})
	require.NoError(t, err)

	n := NewNames("report.pdf")
	assert.Equal(t, n.Final(), final)

	dir := filepath.Join(e.root, "sub1")
	got, err := os.ReadFile(filepath.Join(dir, final))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.ElementsMatch(t, []string{final, n.Metadata()}, listDir(t, dir))

	md, err := ReadMetadata(filepath.Join(dir, n.Metadata()))
	require.NoError(t, err)
	assert.Equal(t, models.FileMetadata{Name: "report.pdf", Path: filepath.Join(dir, final), Size: 5}, md)
	assert.True(t, filepath.IsAbs(md.Path))

	u, err := e.repo.Get(context.Background(), "sub1", n.FileKey())
	require.NoError(t, err)
	assert.True(t, u.Completed())
	assert.Equal(t, final, u.FinalFilename)
	assert.Equal(t, int64(5), u.Size)
	assert.Equal(t, 1, u.TotalChunks)
}

func TestReceive_InOrderChunks(t *testing.T) {
	e := newTestEnv(t)
	n := NewNames("data.tar.gz")

	assert.Equal(t, "", e.send(t, "s", "data.tar.gz", 0, 3, "aa"))
	assert.Equal(t, "", e.send(t, "s", "data.tar.gz", 1, 3, "bb"))
	assert.ElementsMatch(t, []string{n.Chunk(0), n.Chunk(1)}, listDir(t, filepath.Join(e.root, "s")))

	final := e.send(t, "s", "data.tar.gz", 2, 3, "cc")
	assert.Equal(t, n.Final(), final)
	assert.True(t, strings.HasSuffix(final, ".tar.gz"))

	got, err := os.ReadFile(filepath.Join(e.root, "s", final))
	require.NoError(t, err)
	assert.Equal(t, "aabbcc", string(got))

	// chunks are gone, no temp files remain
	assert.ElementsMatch(t, []string{final, n.Metadata()}, listDir(t, filepath.Join(e.root, "s")))
}

func TestReceive_NumericChunkOrder(t *testing.T) {
	e := newTestEnv(t)
	const total = 12

	var want bytes.Buffer
	var final string
	for i := 0; i < total; i++ {
		part := fmt.Sprintf("<%02d>", i)
		want.WriteString(part)
		final = e.send(t, "s", "big.bin", i, total, part)
	}
	require.NotEmpty(t, final)

	got, err := os.ReadFile(filepath.Join(e.root, "s", final))
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got))
}

func TestReceive_OutOfOrder_LastIndexFirst(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, "", e.send(t, "s", "f.txt", 2, 3, "C"))
	assert.Equal(t, "", e.send(t, "s", "f.txt", 0, 3, "A"))
	final := e.send(t, "s", "f.txt", 1, 3, "B")
	require.NotEmpty(t, final)

	got, err := os.ReadFile(filepath.Join(e.root, "s", final))
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(got))
}

func TestReceive_RetriedChunkOverwrites(t *testing.T) {
	e := newTestEnv(t)

	e.send(t, "s", "f.txt", 0, 2, "stale")
	e.send(t, "s", "f.txt", 0, 2, "A")
	final := e.send(t, "s", "f.txt", 1, 2, "B")

	got, err := os.ReadFile(filepath.Join(e.root, "s", final))
	require.NoError(t, err)
	assert.Equal(t, "AB", string(got))
}

func TestReceive_ConcurrentChunksAssembleOnce(t *testing.T) {
	e := newTestEnv(t)
	const total = 8

	var wg sync.WaitGroup
	finals := make(chan string, total)
	for i := total - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			final, err := e.svc.Receive(context.Background(), ChunkRequest{
				SubmissionID: "s", Name: "c.bin", Index: i, Total: intp(total), Body: strings.NewReader(fmt.Sprint(i)),
			})
			assert.NoError(t, err)
			finals <- final
		}(i)
	}
	wg.Wait()
	close(finals)

	var assembled []string
	for f := range finals {
		if f != "" {
			assembled = append(assembled, f)
		}
	}
	require.Len(t, assembled, 1)

	got, err := os.ReadFile(filepath.Join(e.root, "s", assembled[0]))
	require.NoError(t, err)
	assert.Equal(t, "01234567", string(got))
}

func TestReceive_ReuploadAfterCompletion(t *testing.T) {
	e := newTestEnv(t)

	e.send(t, "s", "f.txt", 0, 2, "A")
	first := e.send(t, "s", "f.txt", 1, 2, "B")

	// a new cycle may declare a different total
	e.send(t, "s", "f.txt", 0, 3, "x")
	e.send(t, "s", "f.txt", 1, 3, "y")
	second := e.send(t, "s", "f.txt", 2, 3, "z")
	assert.Equal(t, first, second)

	got, err := os.ReadFile(filepath.Join(e.root, "s", second))
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(got))

	md, err := ReadMetadata(filepath.Join(e.root, "s", MetadataName(second)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), md.Size)
}

func TestReceive_InvalidIdentifier(t *testing.T) {
	e := newTestEnv(t)

	for _, id := range []string{"", "/etc", `\share`, ".", "..", "../outside", "a/../../outside"} {
		t.Run(id, func(t *testing.T) {
			_, err := e.svc.Receive(context.Background(), ChunkRequest{
				SubmissionID: id, Name: "f.txt", Body: strings.NewReader("x"),
			})
			assert.ErrorIs(t, err, common.ErrInvalidIdentifier)
		})
	}

	assert.Empty(t, listDir(t, e.root), "nothing written for rejected ids")
	_, err := os.Stat(filepath.Join(filepath.Dir(e.root), "outside"))
	assert.True(t, os.IsNotExist(err))
}

func TestReceive_NestedSubmissionID(t *testing.T) {
	e := newTestEnv(t)

	final := e.send(t, "2024/abc", "f.txt", 0, 1, "x")
	_, err := os.Stat(filepath.Join(e.root, "2024", "abc", final))
	assert.NoError(t, err)
}

func TestReceive_InvalidChunk(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name         string
		index, total int
	}{
		{"zero total", 0, 0},
		{"negative total", 0, -2},
		{"negative index", -1, 3},
		{"index equals total", 3, 3},
		{"index above total", 7, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Receive(context.Background(), ChunkRequest{
				SubmissionID: "s", Name: "f.txt", Index: tt.index, Total: intp(tt.total), Body: strings.NewReader("x"),
			})
			assert.ErrorIs(t, err, common.ErrInvalidChunk)
		})
	}
	assert.Empty(t, listDir(t, e.root))
}

func TestReceive_ChunkCountMismatch(t *testing.T) {
	e := newTestEnv(t)

	e.send(t, "s", "f.txt", 0, 3, "A")
	_, err := e.svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: "s", Name: "f.txt", Index: 1, Total: intp(4), Body: strings.NewReader("B"),
	})
	assert.ErrorIs(t, err, common.ErrChunkCountMismatch)

	n := NewNames("f.txt")
	assert.Equal(t, []string{n.Chunk(0)}, listDir(t, filepath.Join(e.root, "s")))
}

type failingRepo struct {
	uploads.Repository
	err error
}

func (r failingRepo) Get(context.Context, string, string) (*models.Upload, error) {
	return nil, r.err
}

func (r failingRepo) Track(context.Context, string, string, uploads.TrackFunc) error {
	return r.err
}

func TestReceive_StateStoreErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	svc, err := NewService(Options{Root: t.TempDir(), Uploads: failingRepo{err: boom}})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), ChunkRequest{SubmissionID: "s", Name: "f", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, boom)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestReceive_BodyErrorLeavesNoFile(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: "s", Name: "f.txt", Index: 0, Total: intp(2), Body: errReader{},
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, listDir(t, filepath.Join(e.root, "s")))
}

func TestReceive_ArchivesAssembledFile(t *testing.T) {
	e := newTestEnv(t)

	final := e.send(t, "s", "f.txt", 0, 1, "payload")
	assert.Equal(t, []byte("payload"), e.arch.put["s/"+final])
}

func TestReceive_ArchiveFailureIsNotFatal(t *testing.T) {
	e := newTestEnv(t)
	e.arch.putErr = errors.New("s3 unavailable")

	final := e.send(t, "s", "f.txt", 0, 1, "payload")
	assert.NotEmpty(t, final)
	assert.Equal(t, 1.0, e.counter(t, "chunkstore_archive_errors_total", map[string]string{"op": "put"}))
}

func TestReceive_Metrics(t *testing.T) {
	e := newTestEnv(t)

	e.send(t, "s", "f.txt", 0, 2, "ab")
	e.send(t, "s", "f.txt", 1, 2, "cd")

	assert.Equal(t, 1.0, e.counter(t, "chunkstore_assemblies_total", map[string]string{"result": metrics.ResultOK}))
	assert.Equal(t, 2.0, e.counter(t, "chunkstore_chunks_received_total", nil))
	assert.Equal(t, 4.0, e.counter(t, "chunkstore_assembled_bytes_total", nil))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Options{Uploads: uploads.NewMemoryRepository()})
	assert.Error(t, err)

	_, err = NewService(Options{Root: t.TempDir()})
	assert.Error(t, err)

	root := filepath.Join(t.TempDir(), "nested", "root")
	svc, err := NewService(Options{Root: root, Uploads: uploads.NewMemoryRepository()})
	require.NoError(t, err)
	assert.DirExists(t, svc.Root())
}

// --- sweeper ---

func TestSweepStale(t *testing.T) {
	e := newTestEnv(t)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.svc.now = func() time.Time { return clock }

	e.send(t, "s", "partial.bin", 0, 3, "A")
	e.send(t, "s", "done.bin", 0, 1, "D")

	clock = clock.Add(30 * time.Minute)
	e.send(t, "s", "fresh.bin", 0, 2, "F")

	clock = clock.Add(45 * time.Minute)
	n, err := e.svc.SweepStale(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	partial, done, fresh := NewNames("partial.bin"), NewNames("done.bin"), NewNames("fresh.bin")
	assert.ElementsMatch(t,
		[]string{done.Final(), done.Metadata(), fresh.Chunk(0)},
		listDir(t, filepath.Join(e.root, "s")))

	_, err = e.repo.Get(context.Background(), "s", partial.FileKey())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	e := newTestEnv(t)
	w := NewSweeper(e.svc, 0, time.Second, nil)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	e := newTestEnv(t)
	w := NewSweeper(e.svc, time.Hour, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestReceive_DeclaredTotalIsBounded(t *testing.T) {
	e := newTestEnv(t)

	for _, total := range []int{1 << 60, DefaultMaxChunks + 1} {
		_, err := e.svc.Receive(context.Background(), ChunkRequest{
			SubmissionID: "s", Name: "f.bin", Index: 0, Total: intp(total), Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, common.ErrInvalidChunk, "total %d", total)
	}
	assert.Empty(t, listDir(t, e.root))

	svc, err := NewService(Options{Root: t.TempDir(), Uploads: uploads.NewMemoryRepository(), MaxChunks: 2})
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: "s", Name: "f.bin", Index: 0, Total: intp(3), Body: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, common.ErrInvalidChunk)

	final, err := svc.Receive(context.Background(), ChunkRequest{
		SubmissionID: "s", Name: "f.bin", Index: 0, Total: intp(2), Body: strings.NewReader("x"),
	})
	require.NoError(t, err)
	assert.Empty(t, final)
}

func TestSelectChunks_LargeTotal(t *testing.T) {
	chunks := []chunkFile{{index: 0, path: "a"}, {index: 1, path: "b"}}

	parts, ok := selectChunks(chunks, 1<<60)
	assert.False(t, ok)
	assert.Len(t, parts, 2)
}

func TestReceive_LostStateDiscardsEarlierChunks(t *testing.T) {
	e := newTestEnv(t)

	for i := 0; i < 4; i++ {
		e.send(t, "s", "f.bin", i, 5, "OLD")
	}

	// A restart with the in-memory store forgets the unfinished upload.
	svc, err := NewService(Options{Root: e.root, Uploads: uploads.NewMemoryRepository()})
	require.NoError(t, err)

	send := func(idx int, data string) string {
		final, err := svc.Receive(context.Background(), ChunkRequest{
			SubmissionID: "s", Name: "f.bin", Index: idx, Total: intp(3), Body: strings.NewReader(data),
		})
		require.NoError(t, err)
		return final
	}

	assert.Empty(t, send(0, "new"))
	assert.Equal(t, []string{NewNames("f.bin").Chunk(0)}, listDir(t, filepath.Join(e.root, "s")))

	assert.Empty(t, send(1, "-"))
	final := send(2, "data")
	require.NotEmpty(t, final)

	got, err := os.ReadFile(filepath.Join(e.root, "s", final))
	require.NoError(t, err)
	assert.Equal(t, "new-data", string(got))
}

func TestReceive_SymlinkedSubmissionOutsideRoot(t *testing.T) {
	e := newTestEnv(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(e.root, "evil")))

	for _, id := range []string{"evil", "evil/nested"} {
		_, err := e.svc.Receive(context.Background(), ChunkRequest{
			SubmissionID: id, Name: "f.txt", Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, common.ErrInvalidIdentifier, id)
	}

	entries, err := os.ReadDir(outside)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing written through the symlink")
}

func TestReceive_SymlinkedSubmissionInsideRoot(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.Mkdir(filepath.Join(e.root, "real"), 0o750))
	require.NoError(t, os.Symlink(filepath.Join(e.root, "real"), filepath.Join(e.root, "alias")))

	final := e.send(t, "alias", "f.txt", 0, 1, "x")
	_, err := os.Stat(filepath.Join(e.root, "real", final))
	assert.NoError(t, err)
}
