package registry

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"patchscope/internal/common/fsutil"
	"patchscope/pkg/types"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher rescans a models directory when GGUF files appear, change or go
// away, and hands the new listing to OnChange.
type Watcher struct {
	Dir      string
	Scanner  *GGUFScanner
	Debounce time.Duration
	OnChange func([]types.Model)
	Logger   *zerolog.Logger
}

// Run blocks until ctx is done. The first scan happens immediately.
func (w *Watcher) Run(ctx context.Context) error {
	log := zlog.Logger
	if w.Logger != nil {
		log = *w.Logger
	}
	scanner := w.Scanner
	if scanner == nil {
		scanner = NewGGUFScanner()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	dir, err := fsutil.ResolvePath(w.Dir)
	if err != nil {
		return err
	}
	rescan := func() {
		models, err := scanner.Scan(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("models rescan failed")
			return
		}
		log.Debug().Int("count", len(models)).Str("dir", dir).Msg("models rescanned")
		if w.OnChange != nil {
			w.OnChange(models)
		}
	}
	if !fsutil.PathExists(dir) {
		log.Warn().Str("dir", dir).Msg("models dir does not exist; not watching")
		<-ctx.Done()
		return nil
	}
	rescan()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(dir); err != nil {
		// Keep serving without live updates.
		log.Warn().Err(err).Str("dir", dir).Msg("cannot watch models dir")
		<-ctx.Done()
		return nil
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !fsutil.IsGGUF(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("models watcher error")
		case <-timer.C:
			rescan()
		}
	}
}
