package mvcc

// Revision returns the newest committed revision
func (store *Store) Revision() int64 {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return store.revision
}
