/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package corpus

import (
	"fmt"
	"sync"
	"time"

	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/common/logutil"
	"golang.org/x/time/rate"
)

/*
Estimated memory footprint per stored annotation and per edge. The cache
budget is computed from counts, not from walking live objects.
*/
const (
	bytesPerAnnotation = 96
	bytesPerEdge       = 48
)

/*
cacheStatusInterval limits how often the cache writes status log lines.
*/
const cacheStatusInterval = 5 * time.Second

/*
cacheEntry is one corpus in the cache. Entries form a doubly linked list
ordered by recency with the most recently used entry at the head.
*/
type cacheEntry struct {
	name    string
	g       *graph.Graph
	size    int64 // Estimated memory footprint in bytes
	loading bool  // Entry is being loaded and must not be evicted

	prev *cacheEntry
	next *cacheEntry
}

/*
graphCache is a bounded LRU cache of loaded corpus graphs. The bound is a
memory budget in bytes, not an entry count. A corpus which is being loaded
is pinned: it is never evicted and never loaded a second time.
*/
type graphCache struct {
	mutex    sync.Mutex
	maxBytes int64
	total    int64
	entries  map[string]*cacheEntry
	head     *cacheEntry
	tail     *cacheEntry

	logger    logutil.Logger
	statusLog *rate.Limiter
}

/*
newGraphCache creates a cache with a given memory budget in bytes.
*/
func newGraphCache(maxBytes int64) *graphCache {
	return &graphCache{
		maxBytes:  maxBytes,
		entries:   make(map[string]*cacheEntry),
		logger:    logutil.GetLogger("corpus.cache"),
		statusLog: rate.NewLimiter(rate.Every(cacheStatusInterval), 1),
	}
}

/*
get returns the cached graph of a corpus and promotes the entry. The second
return value reports if the corpus is currently being loaded.
*/
func (gc *graphCache) get(name string) (*graph.Graph, bool) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	entry, ok := gc.entries[name]
	if !ok {
		return nil, false
	}

	if entry.loading {
		return nil, true
	}

	gc.promote(entry)
	return entry.g, false
}

/*
markLoading registers a corpus as being loaded. The result is false if the
corpus is already cached or already loading.
*/
func (gc *graphCache) markLoading(name string) bool {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if _, ok := gc.entries[name]; ok {
		return false
	}

	entry := &cacheEntry{name: name, loading: true}
	gc.entries[name] = entry
	gc.insertHead(entry)

	return true
}

/*
finishLoading stores the loaded graph of a corpus and returns the entries
which were evicted to stay within the memory budget. A nil graph drops the
loading entry (the load failed).
*/
func (gc *graphCache) finishLoading(name string, g *graph.Graph) []*graph.Graph {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	entry, ok := gc.entries[name]
	if !ok || !entry.loading {
		return nil
	}

	if g == nil {
		gc.unlink(entry)
		delete(gc.entries, name)
		return nil
	}

	entry.g = g
	entry.size = memoryEstimate(g)
	entry.loading = false
	gc.total += entry.size

	evicted := gc.evict()
	gc.logStatus()

	return evicted
}

/*
remove drops a corpus from the cache and returns its graph (nil if the
corpus was not cached).
*/
func (gc *graphCache) remove(name string) *graph.Graph {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	entry, ok := gc.entries[name]
	if !ok || entry.loading {
		return nil
	}

	gc.unlink(entry)
	delete(gc.entries, name)
	gc.total -= entry.size

	return entry.g
}

/*
refresh recalculates the size of a cached corpus after an update.
*/
func (gc *graphCache) refresh(name string) []*graph.Graph {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	entry, ok := gc.entries[name]
	if !ok || entry.loading {
		return nil
	}

	gc.total -= entry.size
	entry.size = memoryEstimate(entry.g)
	gc.total += entry.size

	return gc.evict()
}

/*
status returns the cached size in bytes of a corpus and if it is loaded.
*/
func (gc *graphCache) status(name string) (int64, bool) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	entry, ok := gc.entries[name]
	if !ok || entry.loading {
		return 0, false
	}
	return entry.size, true
}

/*
clear empties the cache and returns all cached graphs.
*/
func (gc *graphCache) clear() []*graph.Graph {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	var res []*graph.Graph

	for _, entry := range gc.entries {
		if entry.g != nil {
			res = append(res, entry.g)
		}
	}

	gc.entries = make(map[string]*cacheEntry)
	gc.head = nil
	gc.tail = nil
	gc.total = 0

	return res
}

/*
evict unlinks least recently used entries until the cache is within its
budget. Loading entries and the most recently used entry are never evicted.
*/
func (gc *graphCache) evict() []*graph.Graph {
	var res []*graph.Graph

	for gc.total > gc.maxBytes {
		victim := gc.tail

		for victim != nil && (victim.loading || victim == gc.head) {
			victim = victim.prev
		}
		if victim == nil {
			break
		}

		gc.unlink(victim)
		delete(gc.entries, victim.name)
		gc.total -= victim.size

		res = append(res, victim.g)
		gc.logger.Info(fmt.Sprintf("Evicting corpus %v (%v bytes)",
			victim.name, victim.size))
	}

	return res
}

/*
logStatus writes a rate limited cache status line.
*/
func (gc *graphCache) logStatus() {
	if !gc.statusLog.Allow() {
		return
	}

	gc.logger.Info(fmt.Sprintf("Corpus cache: %v entries, %v of %v bytes used",
		len(gc.entries), gc.total, gc.maxBytes))
}

/*
promote moves an entry to the head of the recency list.
*/
func (gc *graphCache) promote(entry *cacheEntry) {
	if gc.head == entry {
		return
	}
	gc.unlink(entry)
	gc.insertHead(entry)
}

/*
insertHead inserts an entry at the head of the recency list.
*/
func (gc *graphCache) insertHead(entry *cacheEntry) {
	entry.prev = nil
	entry.next = gc.head

	if gc.head != nil {
		gc.head.prev = entry
	}
	gc.head = entry

	if gc.tail == nil {
		gc.tail = entry
	}
}

/*
unlink removes an entry from the recency list.
*/
func (gc *graphCache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else if gc.head == entry {
		gc.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else if gc.tail == entry {
		gc.tail = entry.prev
	}

	entry.prev = nil
	entry.next = nil
}

/*
memoryEstimate approximates the memory footprint of a loaded graph from its
annotation and edge counts.
*/
func memoryEstimate(g *graph.Graph) int64 {
	res := int64(g.NodeAnnotations().TotalCount()) * bytesPerAnnotation

	// Only loaded components occupy memory

	for _, c := range g.LoadedComponents() {
		st, err := g.Storage(c)
		if err != nil {
			continue
		}

		res += int64(graph.EdgeCount(st)) * bytesPerEdge
		res += int64(st.AnnotationStorage().TotalCount()) * bytesPerAnnotation
	}

	return res
}
