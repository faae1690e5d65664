package alerting

import (
	"context"
	"sort"
	"sync"
)

// MemoryNotifier keeps the visible notifications the way a device tray
// does: a send with an existing ID replaces the earlier one.
type MemoryNotifier struct {
	mu      sync.Mutex
	visible map[uint32]Notification
	sends   int
}

// NewMemoryNotifier 构造内存告警器。
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{visible: make(map[uint32]Notification)}
}

// Notify implements Notifier.
func (m *MemoryNotifier) Notify(_ context.Context, note Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible[note.ID] = note
	m.sends++
	return nil
}

// Visible returns the current notifications ordered by ID.
func (m *MemoryNotifier) Visible() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0, len(m.visible))
	for _, n := range m.visible {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sends counts every Notify call, including replacements.
func (m *MemoryNotifier) Sends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// Dismiss clears all visible notifications.
func (m *MemoryNotifier) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = make(map[uint32]Notification)
}

var _ Notifier = (*MemoryNotifier)(nil)
