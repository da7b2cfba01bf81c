package assistant

import "sync"

// Store keeps the chat history of each conversation in memory. Keys are
// record ids, so selecting another patient starts from an empty history.
type Store struct {
	mu    sync.RWMutex
	convs map[string][]Message
}

func NewStore() *Store {
	return &Store{convs: make(map[string][]Message)}
}

func (s *Store) Append(key string, msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[key] = append(s.convs[key], msgs...)
}

// History returns a copy of the messages recorded for key.
func (s *Store) History(key string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[key]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, key)
}
