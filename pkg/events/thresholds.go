package events

import "sort"

// thresholdMultiset is a sorted multiset of uint64 thresholds, grounded on
// eventStream.h's std::multiset<size_t> m_counterThresholds/m_sizeThresholds:
// every registered subscription contributes one value, duplicates are kept
// (two subscriptions can both ask for a 100-event threshold), and the
// emission rule only ever looks at the minimum. A sorted slice is simpler
// than a tree and plenty fast at the handful of concurrent subscriptions a
// single file realistically carries.
type thresholdMultiset struct {
	values []uint64
}

// newThresholdMultiset seeds the multiset with sentinel, matching the
// original's std::multiset<size_t>{SIZE_MAX} / {maxMilliseconds} — an
// emission rule against an unset threshold never fires.
func newThresholdMultiset(sentinel uint64) *thresholdMultiset {
	return &thresholdMultiset{values: []uint64{sentinel}}
}

// Insert adds v to the multiset.
func (m *thresholdMultiset) Insert(v uint64) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= v })
	m.values = append(m.values, 0)
	copy(m.values[i+1:], m.values[i:])
	m.values[i] = v
}

// Remove deletes one occurrence of v, if present.
func (m *thresholdMultiset) Remove(v uint64) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= v })
	if i < len(m.values) && m.values[i] == v {
		m.values = append(m.values[:i], m.values[i+1:]...)
	}
}

// Min returns the smallest registered threshold.
func (m *thresholdMultiset) Min() uint64 {
	return m.values[0]
}

// Size returns the number of registered thresholds, including the sentinel.
func (m *thresholdMultiset) Size() int {
	return len(m.values)
}
