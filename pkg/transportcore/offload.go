package transportcore

import "go.uber.org/zap"

// offloader runs callbacks on their own goroutine, recovering and logging
// any panic rather than letting it take down the process. Every step that
// must run outside the transport lock goes through one of these.
type offloader struct {
	log *zap.Logger
}

func newOffloader(log *zap.Logger) *offloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &offloader{log: log}
}

func (o *offloader) Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("recovered panic in offloaded callback", zap.Any("panic", r))
			}
		}()
		f()
	}()
}
