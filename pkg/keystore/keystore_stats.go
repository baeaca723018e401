package keystore

// Statistics counts keys by kind and status.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.cfg.now()
	stats := Statistics{TotalKeys: len(s.keys)}
	for _, f := range s.keys {
		switch f.Status {
		case StatusActive:
			stats.ActiveKeys++
		case StatusRevoked:
			stats.RevokedKeys++
		}
		switch f.Kind {
		case KindPerpetual:
			stats.PerpetualKeys++
		case KindRevolving:
			stats.RevolvingKeys++
			if f.Revision > stats.MaxRevision {
				stats.MaxRevision = f.Revision
			}
		}

		age := now.Sub(f.CreatedAt)
		if stats.OldestKeyAge == 0 || age > stats.OldestKeyAge {
			stats.OldestKeyAge = age
		}
		if stats.NewestKeyAge == 0 || age < stats.NewestKeyAge {
			stats.NewestKeyAge = age
		}
	}
	return stats
}
