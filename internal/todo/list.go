// Package todo holds the in-memory todo list owned by the UI and the
// controller that mirrors its changes to the record store.
//
// The list is optimistic: inserts and edits show up immediately, and the
// caller reconciles once the remote operation returns. Nothing is rolled
// back when a remote call fails.
package todo

import (
	"strconv"
	"time"

	"github.com/idilsaglam/dwntodo/internal/model"
)

// List is the local view of the todo records. It is not safe for
// concurrent use; the UI loop owns it.
type List struct {
	items    []model.Todo
	now      func() time.Time
	lastTemp int64
	version  uint64
}

// NewList returns an empty list. now may be nil.
func NewList(now func() time.Time) *List {
	if now == nil {
		now = time.Now
	}
	return &List{now: now}
}

// Replace swaps in the result of a fetch. Placeholders the fetch does
// not contain are kept at the end, since their create is still in flight.
func (l *List) Replace(items []model.Todo) {
	next := append([]model.Todo(nil), items...)
	fetched := make(map[string]bool, len(items))
	for _, it := range items {
		fetched[it.ID] = true
	}
	for _, it := range l.items {
		if it.Pending() && !fetched[it.ID] {
			next = append(next, it)
		}
	}
	l.items = next
}

// Version counts local changes. A fetch issued at an older version may
// predate one of them and must not be applied.
func (l *List) Version() uint64 { return l.version }

// Items returns a copy of the current entries in display order.
func (l *List) Items() []model.Todo {
	return append([]model.Todo(nil), l.items...)
}

func (l *List) Len() int { return len(l.items) }

// Index returns the position of id, or -1.
func (l *List) Index(id string) int {
	for i, it := range l.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the entry with id.
func (l *List) Get(id string) (model.Todo, bool) {
	if i := l.Index(id); i >= 0 {
		return l.items[i], true
	}
	return model.Todo{}, false
}

// InsertPending appends a placeholder for description under a fresh
// temporary id and returns it.
func (l *List) InsertPending(description string) model.Todo {
	t := model.Todo{ID: l.nextTempID(), Description: description}
	l.items = append(l.items, t)
	l.version++
	return t
}

// nextTempID is the current unix millisecond, bumped when two inserts
// share one.
func (l *List) nextTempID() string {
	ms := l.now().UnixMilli()
	if ms <= l.lastTemp {
		ms = l.lastTemp + 1
	}
	l.lastTemp = ms
	return model.TempIDPrefix + strconv.FormatInt(ms, 10)
}

// Confirm replaces the placeholder tempID with the confirmed entry, in
// place. It reports false if the placeholder is gone.
func (l *List) Confirm(tempID string, confirmed model.Todo) bool {
	i := l.Index(tempID)
	if i < 0 {
		return false
	}
	l.version++
	// A refetch that raced the create may already hold the record.
	if j := l.Index(confirmed.ID); j >= 0 && j != i {
		l.items = append(l.items[:i], l.items[i+1:]...)
		return true
	}
	l.items[i] = confirmed
	return true
}

// Mutate applies fn to the entry with id and returns the result.
func (l *List) Mutate(id string, fn func(*model.Todo)) (model.Todo, bool) {
	i := l.Index(id)
	if i < 0 {
		return model.Todo{}, false
	}
	fn(&l.items[i])
	l.version++
	return l.items[i], true
}

// Remove drops the entry with id.
func (l *List) Remove(id string) bool {
	i := l.Index(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.version++
	return true
}

// Stats counts completed and open entries.
func (l *List) Stats() (done, pending int) {
	for _, it := range l.items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
