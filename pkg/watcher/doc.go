// Package watcher uploads test result files from a directory as they
// appear.
//
// A Watcher monitors a directory with fsnotify and posts every *.json
// result file through an OpenTMI client. This is the shipping mode used
// by CI runners that drop result documents on disk instead of talking
// to the server directly.
//
// # Usage
//
//	client := opentmi.New("localhost", 3000)
//	w := watcher.New(client, "./results", watcher.DefaultConfig(),
//	    watcher.WithLogger(logger))
//	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    return err
//	}
//
// Run blocks until the context is cancelled. Files present at startup
// are uploaded first; failed uploads are retried on the next rescan.
package watcher
