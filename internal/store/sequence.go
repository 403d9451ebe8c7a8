package store

// sequence is one ordered, paginated collection. It is not safe for
// concurrent use; the owning collection serializes access.
//
// Pages apply in cursor order: page 1 replaces the records, page n appends
// only once page n-1 has been applied. Pages that arrive early wait in
// pending until the gap closes.
type sequence[T any] struct {
	key   func(T) string
	merge func(old, incoming T) T // nil keeps incoming

	records  []T
	index    map[string]int
	pending  map[int][]T
	nextPage int
	total    int

	// epoch is the generation of the sequence. Fetches capture it when
	// issued and are discarded on arrival if it moved.
	epoch   uint64
	version uint64
	loaded  bool
	err     error
}

func newSequence[T any](key func(T) string, merge func(old, incoming T) T) *sequence[T] {
	return &sequence[T]{
		key:      key,
		merge:    merge,
		index:    make(map[string]int),
		pending:  make(map[int][]T),
		nextPage: 1,
	}
}

// restart starts a new generation that keeps the current records visible
// until the first page replaces them.
func (s *sequence[T]) restart(epoch uint64) {
	s.epoch = epoch
	s.nextPage = 1
	s.pending = make(map[int][]T)
}

// reset clears the sequence and its cursor.
func (s *sequence[T]) reset(epoch uint64) {
	s.restart(epoch)
	s.records = nil
	s.index = make(map[string]int)
	s.total = 0
	s.loaded = false
	s.err = nil
	s.version++
}

// apply stores one fetched page. It reports whether the records changed;
// an early page is only buffered.
func (s *sequence[T]) apply(page int, items []T, total int) bool {
	switch {
	case page <= 1:
		s.replace(items)
	case page == s.nextPage:
		s.mergeAll(items)
		s.nextPage++
	case page < s.nextPage:
		// Re-applied page: idempotent by key.
		s.mergeAll(items)
	default:
		s.pending[page] = items
		return false
	}

	if total > 0 || page <= 1 {
		s.total = total
	}
	s.err = nil
	s.loaded = true
	s.drain()
	s.version++
	return true
}

func (s *sequence[T]) replace(items []T) {
	old, oldIndex := s.records, s.index
	s.records = make([]T, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := oldIndex[s.key(it)]; ok && s.merge != nil {
			it = s.merge(old[i], it)
		}
		s.put(it)
	}
	s.nextPage = 2
}

func (s *sequence[T]) drain() {
	for {
		items, ok := s.pending[s.nextPage]
		if !ok {
			return
		}
		delete(s.pending, s.nextPage)
		s.mergeAll(items)
		s.nextPage++
	}
}

func (s *sequence[T]) mergeAll(items []T) {
	for _, it := range items {
		s.put(it)
	}
}

// put replaces the record with the same key in place or appends it.
// It reports whether the record was appended.
func (s *sequence[T]) put(it T) bool {
	k := s.key(it)
	if i, ok := s.index[k]; ok {
		if s.merge != nil {
			it = s.merge(s.records[i], it)
		}
		s.records[i] = it
		return false
	}
	s.index[k] = len(s.records)
	s.records = append(s.records, it)
	return true
}

// upsert writes a single record outside of pagination.
func (s *sequence[T]) upsert(it T) {
	if s.put(it) {
		s.total++
	}
	s.version++
}

// update rewrites the record under key. It reports whether one existed.
func (s *sequence[T]) update(key string, fn func(T) T) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.records[i] = fn(s.records[i])
	s.version++
	return true
}

// remove physically drops the record under key.
func (s *sequence[T]) remove(key string) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.records); j++ {
		s.index[s.key(s.records[j])] = j
	}
	if s.total > 0 {
		s.total--
	}
	s.version++
	return true
}

func (s *sequence[T]) get(key string) (T, bool) {
	i, ok := s.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return s.records[i], true
}

// fail records a fetch failure and keeps the records.
func (s *sequence[T]) fail(err error) {
	s.err = err
	s.version++
}
