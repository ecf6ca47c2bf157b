package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opentmi/opentmi-go/pkg/log"
	"github.com/opentmi/opentmi-go/pkg/opentmi"
	"github.com/opentmi/opentmi-go/pkg/transport"
)

// ResultPoster uploads a result to the server.
// *opentmi.Client satisfies this interface.
type ResultPoster interface {
	PostResult(ctx context.Context, result opentmi.Result, files ...transport.File) (*opentmi.Result, error)
}

// Config holds configuration options for the result watcher.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before
	// uploading. Default: 100 milliseconds.
	DebounceDelay time.Duration

	// RetryInterval is the delay between directory rescans, which also
	// retries files whose upload failed. Default: 5 seconds.
	RetryInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		RetryInterval: 5 * time.Second,
	}
}

// Watcher monitors a directory for result files and uploads each *.json
// file through the client as it appears. Files already present at start
// are uploaded first. A file whose upload fails is retried on the next
// rescan; a file that is not valid result JSON is skipped for good.
type Watcher struct {
	poster        ResultPoster
	dir           string
	debounceDelay time.Duration
	retryInterval time.Duration
	logger        log.Logger

	processed map[string]bool
}

// Option configures optional behavior of a Watcher.
type Option func(*Watcher)

// WithLogger sets a custom logger for structured logging.
func WithLogger(logger log.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a result watcher for the given directory.
func New(poster ResultPoster, dir string, cfg Config, opts ...Option) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}

	w := &Watcher{
		poster:        poster,
		dir:           dir,
		debounceDelay: cfg.DebounceDelay,
		retryInterval: cfg.RetryInterval,
		logger:        log.NewNoopLogger(),
		processed:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until the context is done.
// Existing result files are uploaded before watching starts.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching result directory", log.String("dir", w.dir))

	w.scan(ctx)

	debounce := time.NewTimer(w.debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	rescan := time.NewTicker(w.retryInterval)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isResultFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Coalesce bursts of writes into one scan.
			debounce.Reset(w.debounceDelay)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", log.Err(err))

		case <-debounce.C:
			w.scan(ctx)

		case <-rescan.C:
			w.scan(ctx)
		}
	}
}

// scan uploads every unprocessed result file in the directory.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("read result directory", log.Err(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isResultFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.processed[path] {
			continue
		}
		w.upload(ctx, path)
	}
}

// upload posts a single result file.
func (w *Watcher) upload(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read result file", log.String("file", path), log.Err(err))
		return
	}

	var result opentmi.Result
	if err := json.Unmarshal(data, &result); err != nil {
		// Malformed files will not become valid on retry.
		w.logger.Warn("skip malformed result file", log.String("file", path), log.Err(err))
		w.processed[path] = true
		return
	}

	stored, err := w.poster.PostResult(ctx, result)
	if err != nil {
		w.logger.Warn("upload failed, will retry",
			log.String("file", path),
			log.Err(err))
		return
	}

	w.processed[path] = true
	w.logger.Info("result uploaded",
		log.String("file", path),
		log.String("_id", stored.ID))
}

// isResultFile reports whether a path names a candidate result file.
func isResultFile(path string) bool {
	return strings.HasSuffix(path, ".json")
}
