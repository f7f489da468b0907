package cache

// set is a hash set of stored keys, bucketed by the stored hash.
// Not safe for concurrent use; the cache lock guards it.
type set[T Object[T]] struct {
	buckets map[uint64][]weakKey[T]
	n       int
}

func newSet[T Object[T]]() set[T] {
	return set[T]{buckets: make(map[uint64][]weakKey[T])}
}

// lookup returns the index, within the bucket for h, of the first stored key
// equal to probe.
func (s *set[T]) lookup(h uint64, probe key[T], eq func(a, b key[T]) bool) (int, bool) {
	for i, k := range s.buckets[h] {
		if eq(probe, k) {
			return i, true
		}
	}
	return -1, false
}

func (s *set[T]) at(h uint64, i int) weakKey[T] { return s.buckets[h][i] }

func (s *set[T]) add(k weakKey[T]) {
	s.buckets[k.hash] = append(s.buckets[k.hash], k)
	s.n++
}

// removeAt deletes the i-th key of bucket h in O(bucket length).
func (s *set[T]) removeAt(h uint64, i int) {
	b := s.buckets[h]
	last := len(b) - 1
	b[i] = b[last]
	b[last] = weakKey[T]{} // drop the cell reference
	if last == 0 {
		delete(s.buckets, h)
	} else {
		s.buckets[h] = b[:last]
	}
	s.n--
}

func (s *set[T]) len() int { return s.n }
