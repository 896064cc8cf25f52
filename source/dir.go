// Package source contains producers that feed a relay.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/fsnotify/fsnotify"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the directory source configuration.
const (
	DefaultDirConfigReadExisting = true
	DefaultDirConfigReadContents = true
	DefaultDirConfigMaxFileSize  = 1024 * 1024
)

var defaultDirConfigWatchedDirs = []string{"."}

// DefaultDirConfigWatchedDirs returns a new copy of the default list of directories to watch.
func DefaultDirConfigWatchedDirs() []string {
	return slices.Clone(defaultDirConfigWatchedDirs)
}

// DirConfig structs contains the configuration for the directory source.
type DirConfig struct {
	// WatchedDirs contains the list of directories to watch.
	//
	// Default: ["."]
	WatchedDirs []string `json:"watched_dirs" yaml:"watched_dirs" toml:"watched_dirs"`

	// Extensions filters the files by extension (e.g. ".yaml").
	// If empty, every file is reported.
	Extensions []string `json:"extensions" yaml:"extensions" toml:"extensions"`

	// ReadExisting states whether to report the files already present
	// in the watched directories when the source starts.
	//
	// Default: true
	ReadExisting bool `json:"read_existing" yaml:"read_existing" toml:"read_existing"`

	// ReadContents states whether to attach the contents of the file
	// to the create and write events.
	//
	// Default: true
	ReadContents bool `json:"read_contents" yaml:"read_contents" toml:"read_contents"`

	// MaxFileSize is the maximum number of bytes read from a file.
	// Larger files are reported without contents.
	//
	// Default: 1MiB
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size" toml:"max_file_size"`
}

// DefaultDirConfig returns the default configuration for the directory source.
func DefaultDirConfig() *DirConfig {
	return &DirConfig{
		WatchedDirs:  DefaultDirConfigWatchedDirs(),
		ReadExisting: DefaultDirConfigReadExisting,
		ReadContents: DefaultDirConfigReadContents,
		MaxFileSize:  DefaultDirConfigMaxFileSize,
	}
}

// Validate checks the configuration.
func (c *DirConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "WatchedDirs", &c.WatchedDirs, DefaultDirConfigWatchedDirs())
	config.CheckPositive(ac, "MaxFileSize", &c.MaxFileSize, DefaultDirConfigMaxFileSize)
}

func (c *DirConfig) matches(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}

	ext := filepath.Ext(path)
	return slices.ContainsFunc(c.Extensions, func(allowed string) bool {
		return strings.EqualFold(allowed, ext)
	})
}

/////////////
//  EVENT  //
/////////////

// FileOp is the operation reported by a file event.
type FileOp uint8

const (
	// FileOpExisting reports a file found when the source started.
	FileOpExisting FileOp = iota
	// FileOpCreate reports a new file.
	FileOpCreate
	// FileOpWrite reports a modified file.
	FileOpWrite
	// FileOpRemove reports a removed or renamed file.
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpExisting:
		return "existing"
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileEvent is the item submitted to the relay for every change
// in the watched directories.
type FileEvent struct {
	Path string
	Op   FileOp

	// Contents is nil for remove events, when ReadContents is false,
	// or when the file is larger than MaxFileSize.
	Contents []byte
	ModTime  time.Time
}

// LogValue implements slog.LogValuer, the contents are reported by size only.
func (fe FileEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", fe.Path),
		slog.String("op", fe.Op.String()),
		slog.Int("size", len(fe.Contents)),
		slog.Time("mod_time", fe.ModTime),
	)
}

//////////////
//  SOURCE  //
//////////////

// Dir is a source that watches a list of directories
// and submits a FileEvent for every file change.
type Dir struct {
	tel *internal.Telemetry

	cfg *DirConfig

	handle  *relay.Handle[FileEvent]
	watcher *fsnotify.Watcher

	closeOnce sync.Once

	submittedEvents atomic.Int64
	skippedFiles    atomic.Int64
}

// NewDir returns a new directory source. It clones the handle,
// so the caller is still responsible for releasing its own.
// If cfg is nil the default configuration is used.
func NewDir(handle *relay.Handle[FileEvent], cfg *DirConfig) (*Dir, error) {
	if cfg == nil {
		cfg = DefaultDirConfig()
	}

	dirCfg := *cfg

	tel := internal.NewTelemetry("source", "dir")
	config.NewValidator(tel).Validate(&dirCfg)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dirPath := range dirCfg.WatchedDirs {
		if err := watcher.Add(dirPath); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching directory %s: %w", dirPath, err)
		}
	}

	clone, err := handle.Clone()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	d := &Dir{
		tel: tel,

		cfg: &dirCfg,

		handle:  clone,
		watcher: watcher,
	}

	tel.NewCounter("submitted_events", func() int64 { return d.submittedEvents.Load() })
	tel.NewCounter("skipped_files", func() int64 { return d.skippedFiles.Load() })

	return d, nil
}

// Run reports the existing files, if configured, and then the file changes
// until ctx is done or the source is closed. It closes the source on return.
// It returns relay.ErrChannelClosed if the relay stops accepting events.
func (d *Dir) Run(ctx context.Context) error {
	defer d.Close()

	if d.cfg.ReadExisting {
		if err := d.submitExistingFiles(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}

			if err := d.handleEvent(ctx, event); err != nil {
				return err
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}

			d.tel.LogError("watcher error", err)
		}
	}
}

// Close stops the watcher and releases the handle. It is idempotent.
func (d *Dir) Close() {
	d.closeOnce.Do(func() {
		if err := d.watcher.Close(); err != nil {
			d.tel.LogError("failed to close watcher", err)
		}

		d.handle.Release()
	})
}

// submitExistingFiles is needed because the watcher
// does not fire events for the files already present.
func (d *Dir) submitExistingFiles(ctx context.Context) error {
	for _, dirPath := range d.cfg.WatchedDirs {
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			d.tel.LogError("failed to read directory", err, "path", dirPath)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			path := filepath.Join(dirPath, entry.Name())
			if err := d.submitFile(ctx, path, FileOpExisting); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Dir) handleEvent(ctx context.Context, event fsnotify.Event) error {
	path := event.Name

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return d.submitFile(ctx, path, FileOpRemove)

	case event.Has(fsnotify.Create):
		return d.submitFile(ctx, path, FileOpCreate)

	case event.Has(fsnotify.Write):
		return d.submitFile(ctx, path, FileOpWrite)
	}

	return nil
}

func (d *Dir) submitFile(ctx context.Context, path string, op FileOp) error {
	if !d.cfg.matches(path) {
		return nil
	}

	event := FileEvent{
		Path: path,
		Op:   op,
	}

	if op != FileOpRemove {
		info, err := os.Stat(path)
		if err != nil {
			// The file may be gone already, the remove event will follow
			d.tel.LogDebug("failed to stat file", "path", path, "error", err)
			return nil
		}

		if info.IsDir() {
			return nil
		}

		event.ModTime = info.ModTime()

		if d.cfg.ReadContents {
			contents, err := d.readContents(path, info.Size())
			if err != nil {
				d.tel.LogError("failed to read file", err, "path", path)
			}
			event.Contents = contents
		}
	}

	if err := d.handle.SubmitContext(ctx, event); err != nil {
		return err
	}

	d.submittedEvents.Add(1)

	return nil
}

var errFileTooLarge = errors.New("file too large")

func (d *Dir) readContents(path string, size int64) ([]byte, error) {
	if size > d.cfg.MaxFileSize {
		d.skippedFiles.Add(1)
		return nil, fmt.Errorf("%w: %d bytes", errFileTooLarge, size)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, d.cfg.MaxFileSize))
}
