// Package proxyctl owns the lifecycle of the cli-proxy-api-plus worker: the
// long-running server process and the short-lived authentication
// sub-processes. All mutable process state lives on the Supervisor and
// AuthRunner instances, callers never touch OS handles directly.
package proxyctl

import "sync"

// OutputBroadcaster fans worker output lines out to subscribers and keeps a
// ring of recent lines for late joiners.
type OutputBroadcaster struct {
	clients map[chan string]bool
	history []string
	maxHist int
	mu      sync.RWMutex
}

func NewOutputBroadcaster(historySize int) *OutputBroadcaster {
	if historySize <= 0 {
		historySize = 1000
	}
	return &OutputBroadcaster{
		clients: make(map[chan string]bool),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe registers a new client channel. The channel is buffered; slow
// consumers miss lines instead of blocking the worker drain loop.
func (b *OutputBroadcaster) Subscribe() chan string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 100)
	b.clients[ch] = true
	return ch
}

// SubscribeWithHistory registers a client and returns up to historyLines of
// recent output alongside the live channel.
func (b *OutputBroadcaster) SubscribeWithHistory(historyLines int) (chan string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 100)
	b.clients[ch] = true

	var history []string
	if historyLines > 0 && len(b.history) > 0 {
		start := len(b.history) - historyLines
		if start < 0 {
			start = 0
		}
		history = make([]string, len(b.history)-start)
		copy(history, b.history[start:])
	}

	return ch, history
}

func (b *OutputBroadcaster) Unsubscribe(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

// Broadcast appends a line to history and delivers it to every subscriber
// whose buffer has room.
func (b *OutputBroadcaster) Broadcast(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) >= b.maxHist {
		b.history = b.history[1:]
	}
	b.history = append(b.history, line)

	for ch := range b.clients {
		select {
		case ch <- line:
		default:
			// Channel buffer full, skip this client
		}
	}
}

// Recent returns a copy of the last n history lines.
func (b *OutputBroadcaster) Recent(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]string, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

func (b *OutputBroadcaster) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
}
