package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type dirTest struct {
	events chan FileEvent

	handle *relay.Handle[FileEvent]
	join   *relay.JoinHandle
}

func newDirTest(t *testing.T) *dirTest {
	t.Helper()

	events := make(chan FileEvent, 128)

	handle, join, err := relay.NewFunc(t.Context(), func(_ context.Context, event FileEvent) error {
		events <- event
		return nil
	}, nil)
	require.NoError(t, err)

	return &dirTest{
		events: events,
		handle: handle,
		join:   join,
	}
}

// waitEvent returns the first event that satisfies match.
func (dt *dirTest) waitEvent(t *testing.T, match func(FileEvent) bool) FileEvent {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-dt.events:
			if match(event) {
				return event
			}

		case <-timeout:
			require.FailNow(t, "timeout waiting for file event")
			return FileEvent{}
		}
	}
}

func (dt *dirTest) stop(t *testing.T) {
	t.Helper()

	dt.handle.Release()
	require.NoError(t, dt.join.Wait())
}

func Test_Dir(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	existingPath := filepath.Join(dir, "existing.yaml")
	require.NoError(t, os.WriteFile(existingPath, []byte("a: 1"), 0o644))

	dt := newDirTest(t)

	cfg := DefaultDirConfig()
	cfg.WatchedDirs = []string{dir}
	cfg.Extensions = []string{".yaml", ".TOML"}

	src, err := NewDir(dt.handle, cfg)
	require.NoError(t, err)

	ctx, cancelCtx := context.WithCancel(t.Context())
	runErr := make(chan error, 1)
	go func() {
		runErr <- src.Run(ctx)
	}()

	event := dt.waitEvent(t, func(fe FileEvent) bool { return fe.Path == existingPath })
	assert.Equal(FileOpExisting, event.Op)
	assert.Equal([]byte("a: 1"), event.Contents)
	assert.False(event.ModTime.IsZero())

	// Filtered out by extension
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	newPath := filepath.Join(dir, "new.toml")
	require.NoError(t, os.WriteFile(newPath, []byte("b = 2"), 0o644))

	event = dt.waitEvent(t, func(fe FileEvent) bool {
		return fe.Path == newPath && string(fe.Contents) == "b = 2"
	})
	assert.Contains([]FileOp{FileOpCreate, FileOpWrite}, event.Op)

	require.NoError(t, os.Remove(newPath))

	event = dt.waitEvent(t, func(fe FileEvent) bool {
		assert.NotEqual(filepath.Join(dir, "notes.txt"), fe.Path)
		return fe.Path == newPath && fe.Op == FileOpRemove
	})
	assert.Nil(event.Contents)

	cancelCtx()
	assert.NoError(<-runErr)
	assert.Equal(relay.StateOpen, dt.join.State())

	dt.stop(t)
	assert.Equal(relay.StateClosed, dt.join.State())
}

func Test_Dir_MaxFileSize(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	bigPath := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(bigPath, make([]byte, 64), 0o644))

	dt := newDirTest(t)

	cfg := DefaultDirConfig()
	cfg.WatchedDirs = []string{dir}
	cfg.MaxFileSize = 16

	src, err := NewDir(dt.handle, cfg)
	require.NoError(t, err)

	ctx, cancelCtx := context.WithCancel(t.Context())
	runErr := make(chan error, 1)
	go func() {
		runErr <- src.Run(ctx)
	}()

	event := dt.waitEvent(t, func(fe FileEvent) bool { return fe.Path == bigPath })
	assert.Nil(event.Contents)
	assert.Equal(int64(1), src.skippedFiles.Load())

	cancelCtx()
	assert.NoError(<-runErr)

	dt.stop(t)
}

func Test_Dir_RelayClosed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("a: 1"), 0o644))

	handle, join, err := relay.NewFunc(t.Context(), func(_ context.Context, _ FileEvent) error {
		panic("cannot handle file events")
	}, nil)
	require.NoError(t, err)
	defer handle.Release()

	// Kill the consumer loop before the source starts
	require.NoError(t, handle.Submit(FileEvent{Path: "trigger"}))
	require.Error(t, join.Wait())

	_, err = NewDir(handle, &DirConfig{WatchedDirs: []string{dir}})
	assert.ErrorIs(t, err, relay.ErrChannelClosed)
}

func Test_Dir_MissingDirectory(t *testing.T) {
	dt := newDirTest(t)

	_, err := NewDir(dt.handle, &DirConfig{WatchedDirs: []string{filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)

	dt.stop(t)
}

func Test_DirConfig_Validate(t *testing.T) {
	assert := assert.New(t)

	cfg := &DirConfig{}

	ac := config.NewAnomalyCollector()
	cfg.Validate(ac)

	assert.Equal(2, ac.Len())
	assert.Equal([]string{"."}, cfg.WatchedDirs)
	assert.Equal(int64(DefaultDirConfigMaxFileSize), cfg.MaxFileSize)
}

func Test_DefaultDirConfig_Copy(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultDirConfig()
	cfg.WatchedDirs[0] = "in"

	assert.Equal([]string{"."}, DefaultDirConfig().WatchedDirs)
	assert.Equal([]string{"."}, DefaultDirConfigWatchedDirs())
}

func Test_FileOp_String(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("existing", FileOpExisting.String())
	assert.Equal("create", FileOpCreate.String())
	assert.Equal("write", FileOpWrite.String())
	assert.Equal("remove", FileOpRemove.String())
	assert.Equal("unknown", FileOp(42).String())
}

func Test_FileEvent_LogValue(t *testing.T) {
	event := FileEvent{Path: "a.yaml", Op: FileOpWrite, Contents: []byte("a: 1")}

	attrs := event.LogValue().Group()

	values := make(map[string]string)
	for _, attr := range attrs {
		values[attr.Key] = attr.Value.String()
	}

	assert.Equal(t, "a.yaml", values["path"])
	assert.Equal(t, "write", values["op"])
	assert.Equal(t, "4", values["size"])
}
