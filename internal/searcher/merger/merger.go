// Package merger keeps the best hits of a search across segments.
package merger

import (
	"container/heap"
	"sort"
)

// Hit is a matching document with its snapshot-wide ID.
type Hit struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Better reports whether a ranks before b: higher score first, then lower
// doc ID.
func Better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// maxPrealloc bounds the heap capacity reserved up front; the heap grows past
// it only as hits actually arrive.
const maxPrealloc = 1024

// TopK collects the best limit hits. It is not safe for concurrent use.
type TopK struct {
	limit int
	h     hitHeap
}

func NewTopK(limit int) *TopK {
	if limit <= 0 {
		limit = 10
	}
	return &TopK{limit: limit, h: make(hitHeap, 0, min(limit, maxPrealloc))}
}

func (t *TopK) Collect(hit Hit) {
	if t.h.Len() < t.limit {
		heap.Push(&t.h, hit)
		return
	}
	if Better(hit, t.h[0]) {
		t.h[0] = hit
		heap.Fix(&t.h, 0)
	}
}

// Hits returns the collected hits in rank order.
func (t *TopK) Hits() []Hit {
	result := make([]Hit, len(t.h))
	copy(result, t.h)
	sort.Slice(result, func(i, j int) bool { return Better(result[i], result[j]) })
	return result
}

// Merge combines already collected hit lists into the best limit overall.
func Merge(lists [][]Hit, limit int) []Hit {
	total := 0
	for _, hits := range lists {
		total += len(hits)
	}
	if total == 0 {
		return []Hit{}
	}
	top := NewTopK(min(limit, total))
	for _, hits := range lists {
		for _, hit := range hits {
			top.Collect(hit)
		}
	}
	return top.Hits()
}

// hitHeap is a min-heap on rank: the root is the worst collected hit.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return Better(h[j], h[i]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
