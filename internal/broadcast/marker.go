package broadcast

import "sync"

// SentMarker remembers which users were served on the recorded date.
type SentMarker struct {
	mu   sync.Mutex
	date string
	keys map[string]struct{}
}

func NewSentMarker() *SentMarker {
	return &SentMarker{keys: map[string]struct{}{}}
}

func markerKey(userID, date string) string { return userID + ":" + date }

// Roll records date, clearing every marker when it differs from the recorded
// one. It reports whether a rollover happened.
func (m *SentMarker) Roll(date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.date == date {
		return false
	}
	m.date = date
	clear(m.keys)
	return true
}

// Claim marks the user for date and reports whether it was unmarked before.
func (m *SentMarker) Claim(userID, date string) bool {
	k := markerKey(userID, date)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k]; ok {
		return false
	}
	m.keys[k] = struct{}{}
	return true
}

// Release undoes a Claim (the delivery failed).
func (m *SentMarker) Release(userID, date string) {
	m.mu.Lock()
	delete(m.keys, markerKey(userID, date))
	m.mu.Unlock()
}

func (m *SentMarker) Has(userID, date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[markerKey(userID, date)]
	return ok
}

func (m *SentMarker) Date() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.date
}

func (m *SentMarker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
