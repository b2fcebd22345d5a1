package model

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultStabilityDelay is how long the weights must stay untouched before
// a load is attempted.
const DefaultStabilityDelay = 500 * time.Millisecond

// Watcher loads the detector in the background as soon as the weights (or
// the metadata sidecar) appear in their directory, so a volume mounted
// after startup is warm before the next request.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	delay   time.Duration
	targets map[string]struct{}
	log     logrus.FieldLogger
	started bool
	done    chan struct{}
}

func NewWatcher(loader *Loader, delay time.Duration, log logrus.FieldLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(loader.ModelPath())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		loader:  loader,
		watcher: fw,
		delay:   delay,
		targets: map[string]struct{}{
			filepath.Clean(loader.ModelPath()):    {},
			filepath.Clean(loader.MetadataPath()): {},
		},
		log:  log.WithField("component", "model-watcher"),
		done: make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	w.log.WithField("dir", filepath.Dir(w.loader.ModelPath())).Info("watching for model weights")
	w.started = true
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.targets[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.delay, w.load)
			} else {
				timer.Reset(w.delay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) load() {
	if w.loader.Loaded() {
		return
	}
	if _, err := w.loader.Get(); err != nil {
		w.log.WithError(err).Warn("background model load failed")
	}
}

// Close stops watching. It does not unload the detector.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}
