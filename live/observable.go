package live

import (
	"slices"
	"sync"
)

// Observable holds a value and notifies listeners when it changes.
// Subscribe replays the current value to the new listener immediately.
// Listeners run on the goroutine that calls Set or Subscribe.
type Observable[T any] struct {
	mu        sync.Mutex
	value     T
	listeners []func(T)
}

// NewObservable returns an observable holding v.
func NewObservable[T any](v T) *Observable[T] {
	return &Observable[T]{value: v}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Subscribe registers fn and calls it once with the current value.
func (o *Observable[T]) Subscribe(fn func(T)) {
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	v := o.value
	o.mu.Unlock()
	fn(v)
}

// Set stores v and calls every listener with it.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}

// Len returns the number of listeners.
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.listeners)
}

// SampleRateConfiguration lists the stream rate and the rates devices offer.
type SampleRateConfiguration struct {
	Current   int   `json:"current"`
	Available []int `json:"available"`
}

// OutputConfiguration describes the active output. A nil Current means the
// host's default device.
type OutputConfiguration struct {
	Current    *string                  `json:"current"`
	Available  []string                 `json:"available"`
	SampleRate *SampleRateConfiguration `json:"sample_rate,omitempty"`
}
