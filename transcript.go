package orderrt

import (
	"slices"
	"sync"
)

type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAssistant
)

func (s Speaker) String() string {
	if s == SpeakerUser {
		return "user"
	}
	return "assistant"
}

type TranscriptEntry struct {
	Speaker  Speaker
	Text     string
	Sequence int
}

// Transcript is an append-only log of both speakers in arrival order.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
}

func (t *Transcript) Append(speaker Speaker, text string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := TranscriptEntry{
		Speaker:  speaker,
		Text:     text,
		Sequence: len(t.entries) + 1,
	}
	t.entries = append(t.entries, e)
	return e
}

// Recent returns the last n entries, oldest first.
func (t *Transcript) Recent(n int) []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	return slices.Clone(t.entries[len(t.entries)-n:])
}

func (t *Transcript) Entries() []TranscriptEntry {
	return t.Recent(0)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
