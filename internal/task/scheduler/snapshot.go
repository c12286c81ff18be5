package scheduler

import "sort"

// History returns finished executions, oldest first.
func (s *Service) History() []HistoryItem {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.histMu.Lock()
	s.history = trimHistory(append(s.history, it), size)
	s.histMu.Unlock()
}

func trimHistory(h []HistoryItem, size int) []HistoryItem {
	if size <= 0 || len(h) <= size {
		return h
	}
	out := make([]HistoryItem, size)
	copy(out, h[len(h)-size:])
	return out
}

func sortEntries(es []EntryInfo) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].NextRun.Equal(es[j].NextRun) {
			return es[i].NextRun.Before(es[j].NextRun)
		}
		return es[i].ID < es[j].ID
	})
}
