package serverfx

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeydtaylor/steeze-stack/pkg/core"
	"github.com/joeydtaylor/steeze-stack/pkg/transport/httpx"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// reloadStack rebuilds the stack from path and swaps it into ad. On any
// error the running stack stays in place.
func reloadStack(path string, ad *httpx.Adapter, d stackDeps) error {
	man, err := core.LoadConfig(path)
	if err != nil {
		return err
	}
	s, err := core.BuildStack(man, d.build())
	if err != nil {
		return err
	}
	allowBodies(d.LogMW, man)
	ad.Swap(s)
	return nil
}

// watchManifest calls rebuild after path changes, until ctx is done. The
// directory is watched so editors that replace the file are seen too.
func watchManifest(ctx context.Context, path string, rebuild func() error, zl *zap.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					fire = time.After(reloadDebounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				zl.Warn("manifest watch error", zap.Error(err))
			case <-fire:
				fire = nil
				if err := rebuild(); err != nil {
					zl.Error("manifest reload failed, keeping previous stack", zap.String("path", abs), zap.Error(err))
					continue
				}
				zl.Info("manifest reloaded", zap.String("path", abs))
			}
		}
	}()
	return nil
}
