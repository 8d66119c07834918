package facematch

import (
	"sync"

	"github.com/coder/hnsw"
)

// galleryMaxNeighbors is the HNSW M parameter.
const galleryMaxNeighbors = 16

// searchK is how many candidates a nearest-neighbor query pulls before
// filtering out unenrolled entries.
const searchK = 8

type galleryEntry struct {
	userID    string
	embedding Embedding
}

// GalleryIndex is an HNSW accelerator over the enrolled embeddings. The
// graph has no true deletion, so unenrolled users are filtered out via the
// entries map; a query whose candidates are all stale reports no answer
// and the engine falls back to the linear scan.
type GalleryIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	entries map[int64]galleryEntry // live nodes only
	nextID  int64
}

// NewGalleryIndex creates an empty index.
func NewGalleryIndex() *GalleryIndex {
	return &GalleryIndex{entries: make(map[int64]galleryEntry)}
}

func newGalleryGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = galleryMaxNeighbors
	g.Ml = 1.0 / float64(galleryMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Add inserts one embedding for userID.
func (gi *GalleryIndex) Add(userID string, emb Embedding) {
	if len(emb) == 0 {
		return
	}

	gi.mu.Lock()
	defer gi.mu.Unlock()

	if gi.graph == nil {
		gi.graph = newGalleryGraph()
	}
	gi.nextID++
	id := gi.nextID
	gi.graph.Add(hnsw.MakeNode(id, emb))
	gi.entries[id] = galleryEntry{userID: userID, embedding: emb}
}

// Nearest returns the closest live entry to the probe. ok is false when
// the index is empty or every candidate has been unenrolled; the caller
// should fall back to the reference linear scan in that case.
func (gi *GalleryIndex) Nearest(probe Embedding) (userID string, distance float64, ok bool) {
	gi.mu.RLock()
	defer gi.mu.RUnlock()

	if gi.graph == nil || len(gi.entries) == 0 {
		return "", 0, false
	}

	for _, n := range gi.graph.Search(probe, searchK) {
		entry, live := gi.entries[n.Key]
		if !live {
			continue
		}
		// Exact distance from the stored embedding; the decision must
		// match what the linear scan would have computed.
		return entry.userID, EuclideanDistance(probe, entry.embedding), true
	}
	return "", 0, false
}

// RemoveUser drops every entry for userID from search results.
func (gi *GalleryIndex) RemoveUser(userID string) {
	gi.mu.Lock()
	defer gi.mu.Unlock()

	for id, entry := range gi.entries {
		if entry.userID == userID {
			delete(gi.entries, id)
		}
	}
}

// Clear resets the index.
func (gi *GalleryIndex) Clear() {
	gi.mu.Lock()
	defer gi.mu.Unlock()

	gi.graph = nil
	gi.entries = make(map[int64]galleryEntry)
}

// Count returns the number of live entries.
func (gi *GalleryIndex) Count() int {
	gi.mu.RLock()
	defer gi.mu.RUnlock()
	return len(gi.entries)
}
