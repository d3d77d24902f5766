package session

import (
	"encoding/json"
	"sync"
)

// MessageListener receives raw inbound payloads for one namespace.
type MessageListener func(namespace string, data json.RawMessage)

// UpdateListener fires after a state change. fromReceiver is true when
// the change came from an inbound status message rather than a local
// mutation.
type UpdateListener func(fromReceiver bool)

// MediaListener fires when a media entity is seen for the first time.
type MediaListener func(m *Media)

type messageListeners struct {
	mu     sync.Mutex
	nextID int
	byNS   map[string]map[int]MessageListener
}

func (l *messageListeners) add(namespace string, fn MessageListener) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byNS == nil {
		l.byNS = make(map[string]map[int]MessageListener)
	}
	if l.byNS[namespace] == nil {
		l.byNS[namespace] = make(map[int]MessageListener)
	}
	l.nextID++
	l.byNS[namespace][l.nextID] = fn
	return l.nextID
}

func (l *messageListeners) remove(namespace string, id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byNS[namespace], id)
}

func (l *messageListeners) dispatch(namespace string, data json.RawMessage) {
	l.mu.Lock()
	fns := make([]MessageListener, 0, len(l.byNS[namespace]))
	for _, fn := range l.byNS[namespace] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(namespace, data)
	}
}

type updateListeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]UpdateListener
}

func (l *updateListeners) add(fn UpdateListener) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]UpdateListener)
	}
	l.nextID++
	l.fns[l.nextID] = fn
	return l.nextID
}

func (l *updateListeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fns, id)
}

func (l *updateListeners) notify(fromReceiver bool) {
	l.mu.Lock()
	fns := make([]UpdateListener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(fromReceiver)
	}
}

type mediaListeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]MediaListener
}

func (l *mediaListeners) add(fn MediaListener) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]MediaListener)
	}
	l.nextID++
	l.fns[l.nextID] = fn
	return l.nextID
}

func (l *mediaListeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fns, id)
}

func (l *mediaListeners) notify(m *Media) {
	l.mu.Lock()
	fns := make([]MediaListener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}
