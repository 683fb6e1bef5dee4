// Package stats provides the incremental and batch statistics backing the
// detection logic: a heap-based rolling median and simple batch helpers.
package stats

import "container/heap"

// RollingMedian maintains the median of an append-only stream of values using
// two balanced heaps: a max-heap of the lower half and a min-heap of the upper
// half, kept within one element of each other. Append is O(log n), Median and
// Clear are O(1)
type RollingMedian struct {
	low   maxHeap
	high  minHeap
	count int
}

// Append adds a value to the stream
func (m *RollingMedian) Append(x float64) {
	m.count++
	if m.low.Len() == 0 || x <= m.low.vals[0] {
		heap.Push(&m.low, x)
	} else {
		heap.Push(&m.high, x)
	}

	// rebalance
	if m.low.Len() > m.high.Len()+1 {
		heap.Push(&m.high, heap.Pop(&m.low))
	} else if m.high.Len() > m.low.Len() {
		heap.Push(&m.low, heap.Pop(&m.high))
	}
}

// Median returns the current median and false if the stream is empty. For an
// even number of values the midpoint of the two central values is returned
func (m *RollingMedian) Median() (float64, bool) {
	if m.count == 0 {
		return 0, false
	}
	if m.low.Len() == m.high.Len() {
		return (m.low.vals[0] + m.high.vals[0]) / 2, true
	}

	// low holds one extra element
	return m.low.vals[0], true
}

// Clear resets the accumulator to its initial empty state
func (m *RollingMedian) Clear() {
	m.low.vals = m.low.vals[:0]
	m.high.vals = m.high.vals[:0]
	m.count = 0
}

// Empty returns true if no values have been appended since the last Clear
func (m *RollingMedian) Empty() bool {
	return m.count == 0
}

// Len returns the number of values currently accumulated
func (m *RollingMedian) Len() int {
	return m.count
}

type minHeap struct {
	vals []float64
}

func (h minHeap) Len() int            { return len(h.vals) }
func (h minHeap) Less(i, j int) bool  { return h.vals[i] < h.vals[j] }
func (h minHeap) Swap(i, j int)       { h.vals[i], h.vals[j] = h.vals[j], h.vals[i] }
func (h *minHeap) Push(x interface{}) { h.vals = append(h.vals, x.(float64)) }
func (h *minHeap) Pop() interface{} {
	n := len(h.vals)
	v := h.vals[n-1]
	h.vals = h.vals[:n-1]
	return v
}

type maxHeap struct {
	vals []float64
}

func (h maxHeap) Len() int            { return len(h.vals) }
func (h maxHeap) Less(i, j int) bool  { return h.vals[i] > h.vals[j] }
func (h maxHeap) Swap(i, j int)       { h.vals[i], h.vals[j] = h.vals[j], h.vals[i] }
func (h *maxHeap) Push(x interface{}) { h.vals = append(h.vals, x.(float64)) }
func (h *maxHeap) Pop() interface{} {
	n := len(h.vals)
	v := h.vals[n-1]
	h.vals = h.vals[:n-1]
	return v
}
