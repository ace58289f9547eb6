package binding

import "sync"

// Signal is a listener registry fired independently of value changes, e.g.
// on blur or when a form is submitted.
type Signal struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
	order     []int
}

// Subscribe registers fn and returns a function that removes it again.
func (s *Signal) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]func())
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, existing := range s.order {
				if existing == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Broadcast calls every listener in subscription order. Listeners run without
// the registry lock held, so they may subscribe or cancel.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
