package sagatest

import (
	"strconv"
	"sync"

	"github.com/AshkanYarmoradi/go-tram"
)

// SequenceIDs returns an IDGenerator producing prefix-1, prefix-2, ...
func SequenceIDs(prefix string) tram.IDGenerator {
	return &sequence{prefix: prefix}
}

type sequence struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (s *sequence) GenerateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.prefix + "-" + strconv.Itoa(s.next)
}
