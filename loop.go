package orderrt

import (
	"sync"
	"sync/atomic"
)

// loop runs tasks one at a time on a single goroutine.
type loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func newLoop() *loop {
	l := &loop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	for {
		select {
		case <-l.done:
			return
		case f := <-l.tasks:
			f()
		}
	}
}

// post schedules f. It reports false once the loop is stopped.
func (l *loop) post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case <-l.done:
		return false
	case l.tasks <- f:
		return true
	}
}

// do runs f on the loop and waits for it. It reports false when the loop
// stopped before f started, in which case f never runs. It must not be
// called from a task.
func (l *loop) do(f func()) bool {
	var claimed atomic.Bool
	finished := make(chan struct{})
	if !l.post(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(finished)
		f()
	}) {
		return false
	}

	select {
	case <-finished:
		return true
	case <-l.done:
		if claimed.CompareAndSwap(false, true) {
			return false
		}
		<-finished
		return true
	}
}

func (l *loop) stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// notifier runs listener callbacks in order on their own goroutine, so a
// listener may call back into the bridge. Posting never blocks.
type notifier struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		queue, closed := n.queue, n.closed
		n.queue = nil
		n.mu.Unlock()

		if len(queue) == 0 {
			if closed {
				return
			}
			<-n.wake
			continue
		}
		for _, f := range queue {
			f()
		}
	}
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// post queues f. It reports false once the notifier is stopped.
func (n *notifier) post(f func()) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.queue = append(n.queue, f)
	n.mu.Unlock()
	n.signal()
	return true
}

// stop lets queued callbacks run and then ends the goroutine.
func (n *notifier) stop() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
}
