package watch

import "time"

// WatcherBuilderOption is a functional option for configuring a Watcher.
// Use the With* functions to create options that are applied directly to the
// watcher instance.
type WatcherBuilderOption func(*watcher)

// WithDebounce sets how long a path must stay quiet after a write before the
// notification is forwarded. Editors often save in several rapid writes;
// the debounce collapses each burst into one notification. Values <= 0 keep
// the default of 100ms.
//
// Parameters:
//   - d: the quiet interval
//
// Returns:
//   - WatcherBuilderOption: option function to apply
func WithDebounce(d time.Duration) WatcherBuilderOption {
	return func(w *watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}
