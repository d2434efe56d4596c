/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package annostorage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
)

/*
StorageFileName is the name of the snapshot file of a memory storage.
*/
const StorageFileName = "nodes.bin"

/*
valueIndex is the inverse index of one annotation key.
*/
type valueIndex[T Item] struct {
	key   *data.AnnoKey  // Interned key instance shared with produced matches
	items map[string][]T // Value to ordered items
	vals  []string       // Sorted distinct values
	count int            // Total number of annotations under this key
}

/*
MemoryStorage is the in-memory annotation store. It is not synchronized,
the owning graph serializes access to it.
*/
type MemoryStorage[T Item] struct {
	codec      Codec[T]
	byItem     map[T][]data.Annotation
	byKey      map[data.AnnoKey]*valueIndex[T]
	histograms map[data.AnnoKey][]string
	uniqueKeys map[data.AnnoKey]bool
	largest    T
	hasLargest bool
	total      int
}

/*
NewMemoryStorage creates a new in-memory annotation store for items
serialized by the given codec.
*/
func NewMemoryStorage[T Item](codec Codec[T]) *MemoryStorage[T] {
	return &MemoryStorage[T]{
		codec:      codec,
		byItem:     make(map[T][]data.Annotation),
		byKey:      make(map[data.AnnoKey]*valueIndex[T]),
		histograms: make(map[data.AnnoKey][]string),
		uniqueKeys: make(map[data.AnnoKey]bool),
	}
}

/*
NewNodeStorage creates an in-memory annotation store for nodes. The
node_name annotation is enforced to be unique.
*/
func NewNodeStorage() *MemoryStorage[data.NodeID] {
	ms := NewMemoryStorage(NodeCodec)
	ms.EnforceUniqueKey(data.AnnoKey{Name: data.NodeNameAttr, NS: data.AnnisNamespace})
	return ms
}

/*
NewEdgeStorage creates an in-memory annotation store for edges.
*/
func NewEdgeStorage() *MemoryStorage[data.Edge] {
	return NewMemoryStorage(EdgeCodec)
}

/*
EnforceUniqueKey declares that every value under a key may be carried by at
most one item.
*/
func (ms *MemoryStorage[T]) EnforceUniqueKey(key data.AnnoKey) {
	ms.uniqueKeys[key] = true
}

/*
Insert adds an annotation to an item. Re-adding an identical annotation is
a no-op, a different value for an existing key overwrites.
*/
func (ms *MemoryStorage[T]) Insert(item T, anno data.Annotation) error {
	annos := ms.byItem[item]

	pos := sort.Search(len(annos), func(i int) bool {
		return annos[i].Key.Compare(anno.Key) >= 0
	})

	if pos < len(annos) && annos[pos].Key == anno.Key {
		if annos[pos].Val == anno.Val {
			return nil
		}

		if err := ms.checkUnique(item, anno); err != nil {
			return err
		}

		ms.indexRemove(item, anno.Key, annos[pos].Val)
		annos[pos].Val = anno.Val
		ms.indexAdd(item, anno.Key, anno.Val)
		return nil
	}

	if err := ms.checkUnique(item, anno); err != nil {
		return err
	}

	annos = append(annos, data.Annotation{})
	copy(annos[pos+1:], annos[pos:])
	annos[pos] = anno
	ms.byItem[item] = annos

	ms.indexAdd(item, anno.Key, anno.Val)
	ms.total++

	if !ms.hasLargest || ms.codec.Less(ms.largest, item) {
		ms.largest = item
		ms.hasLargest = true
	}

	return nil
}

/*
checkUnique verifies that a value under a unique key is not already carried
by a different item.
*/
func (ms *MemoryStorage[T]) checkUnique(item T, anno data.Annotation) error {
	if !ms.uniqueKeys[anno.Key] {
		return nil
	}

	if idx, ok := ms.byKey[anno.Key]; ok {
		for _, existing := range idx.items[anno.Val] {
			if existing != item {
				return &util.GraphError{
					Type:   util.ErrInvalidUpdate,
					Detail: fmt.Sprintf("Value %q of %v is already in use", anno.Val, anno.Key),
				}
			}
		}
	}

	return nil
}

func (ms *MemoryStorage[T]) indexAdd(item T, key data.AnnoKey, val string) {
	idx, ok := ms.byKey[key]
	if !ok {
		idx = &valueIndex[T]{
			key:   data.InternedKey(key.NS, key.Name),
			items: make(map[string][]T),
		}
		ms.byKey[key] = idx
	}

	items := idx.items[val]
	if len(items) == 0 {
		vpos := sort.SearchStrings(idx.vals, val)
		idx.vals = append(idx.vals, "")
		copy(idx.vals[vpos+1:], idx.vals[vpos:])
		idx.vals[vpos] = val
	}

	ipos := sort.Search(len(items), func(i int) bool {
		return !ms.codec.Less(items[i], item)
	})
	items = append(items, item)
	copy(items[ipos+1:], items[ipos:])
	items[ipos] = item
	idx.items[val] = items

	idx.count++
}

func (ms *MemoryStorage[T]) indexRemove(item T, key data.AnnoKey, val string) {
	idx, ok := ms.byKey[key]
	if !ok {
		return
	}

	items := idx.items[val]
	ipos := sort.Search(len(items), func(i int) bool {
		return !ms.codec.Less(items[i], item)
	})

	if ipos < len(items) && items[ipos] == item {
		items = append(items[:ipos], items[ipos+1:]...)
		idx.count--

		if len(items) == 0 {
			delete(idx.items, val)
			vpos := sort.SearchStrings(idx.vals, val)
			if vpos < len(idx.vals) && idx.vals[vpos] == val {
				idx.vals = append(idx.vals[:vpos], idx.vals[vpos+1:]...)
			}
		} else {
			idx.items[val] = items
		}

		if idx.count == 0 {
			delete(ms.byKey, key)
			delete(ms.histograms, key)
		}
	}
}

/*
Value returns the value of an annotation for an item.
*/
func (ms *MemoryStorage[T]) Value(item T, key data.AnnoKey) (string, bool) {
	annos := ms.byItem[item]

	pos := sort.Search(len(annos), func(i int) bool {
		return annos[i].Key.Compare(key) >= 0
	})

	if pos < len(annos) && annos[pos].Key == key {
		return annos[pos].Val, true
	}

	return "", false
}

/*
Annotations returns all annotations of an item ordered by key.
*/
func (ms *MemoryStorage[T]) Annotations(item T) []data.Annotation {
	annos := ms.byItem[item]
	res := make([]data.Annotation, len(annos))
	copy(res, annos)
	return res
}

/*
KeysForItem returns the annotation keys of an item, filtered by an optional
namespace and name.
*/
func (ms *MemoryStorage[T]) KeysForItem(item T, ns *string, name *string) []*data.AnnoKey {
	var res []*data.AnnoKey

	for _, anno := range ms.byItem[item] {
		if ns != nil && anno.Key.NS != *ns {
			continue
		}
		if name != nil && anno.Key.Name != *name {
			continue
		}
		res = append(res, data.InternedKey(anno.Key.NS, anno.Key.Name))
	}

	return res
}

/*
Remove deletes one annotation of an item and returns its former value.
*/
func (ms *MemoryStorage[T]) Remove(item T, key data.AnnoKey) (string, bool) {
	annos := ms.byItem[item]

	pos := sort.Search(len(annos), func(i int) bool {
		return annos[i].Key.Compare(key) >= 0
	})

	if pos >= len(annos) || annos[pos].Key != key {
		return "", false
	}

	val := annos[pos].Val

	annos = append(annos[:pos], annos[pos+1:]...)
	if len(annos) == 0 {
		delete(ms.byItem, item)
	} else {
		ms.byItem[item] = annos
	}

	ms.indexRemove(item, key, val)
	ms.total--

	return val, true
}

/*
RemoveItem deletes all annotations of an item in one pass.
*/
func (ms *MemoryStorage[T]) RemoveItem(item T) error {
	annos := ms.byItem[item]

	for _, anno := range annos {
		ms.indexRemove(item, anno.Key, anno.Val)
	}

	ms.total -= len(annos)
	delete(ms.byItem, item)

	return nil
}

/*
Clear removes all annotations.
*/
func (ms *MemoryStorage[T]) Clear() error {
	ms.byItem = make(map[T][]data.Annotation)
	ms.byKey = make(map[data.AnnoKey]*valueIndex[T])
	ms.histograms = make(map[data.AnnoKey][]string)
	ms.total = 0
	ms.hasLargest = false

	var zero T
	ms.largest = zero

	return nil
}

/*
QNames returns all qualified keys which exist for an annotation name.
*/
func (ms *MemoryStorage[T]) QNames(name string) []data.AnnoKey {
	var res []data.AnnoKey

	for key := range ms.byKey {
		if key.Name == name {
			res = append(res, key)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Compare(res[j]) < 0
	})

	return res
}

/*
AnnotationKeys returns all keys of the storage.
*/
func (ms *MemoryStorage[T]) AnnotationKeys() []data.AnnoKey {
	res := make([]data.AnnoKey, 0, len(ms.byKey))

	for key := range ms.byKey {
		res = append(res, key)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Compare(res[j]) < 0
	})

	return res
}

/*
TotalCount returns the total number of annotations.
*/
func (ms *MemoryStorage[T]) TotalCount() int {
	return ms.total
}

/*
CountForName returns the number of annotations for a name filtered by an
optional namespace.
*/
func (ms *MemoryStorage[T]) CountForName(ns *string, name string) int {
	count := 0

	for _, idx := range ms.matchingIndexes(ns, name) {
		count += idx.count
	}

	return count
}

/*
matchingIndexes returns the value indexes matching a namespace filter and
an annotation name in deterministic order.
*/
func (ms *MemoryStorage[T]) matchingIndexes(ns *string, name string) []*valueIndex[T] {
	if ns != nil {
		if idx, ok := ms.byKey[data.AnnoKey{Name: name, NS: *ns}]; ok {
			return []*valueIndex[T]{idx}
		}
		return nil
	}

	var res []*valueIndex[T]
	for _, key := range ms.QNames(name) {
		res = append(res, ms.byKey[key])
	}

	return res
}

/*
ExactSearch returns all items with a given annotation name, filtered by an
optional namespace and a value constraint.
*/
func (ms *MemoryStorage[T]) ExactSearch(ns *string, name string, value ValueSearch) MatchIterator[T] {
	it := &memoryIterator[T]{indexes: ms.matchingIndexes(ns, name)}

	switch value.Filter {
	case ValueEqual:
		it.exact = &value.Value
	case ValueNotEqual:
		exclude := value.Value
		it.filter = func(val string) bool { return val != exclude }
	}

	return it
}

/*
RegexSearch returns all items whose annotation value matches the given
pattern. The pattern is implicitly anchored at both ends.
*/
func (ms *MemoryStorage[T]) RegexSearch(ns *string, name string, pattern string,
	negated bool) (MatchIterator[T], error) {

	re, err := CompileRegex(pattern)
	if err != nil {
		return nil, err
	}

	it := &memoryIterator[T]{indexes: ms.matchingIndexes(ns, name)}
	it.filter = func(val string) bool { return re.MatchString(val) != negated }

	return it, nil
}

/*
MostFrequentValue estimates the most frequent value of an annotation name.
*/
func (ms *MemoryStorage[T]) MostFrequentValue(ns *string, name string) (string, bool) {
	best := ""
	bestCount := -1

	for _, idx := range ms.matchingIndexes(ns, name) {
		for _, val := range idx.vals {
			if c := len(idx.items[val]); c > bestCount {
				best = val
				bestCount = c
			}
		}
	}

	return best, bestCount >= 0
}

/*
AllValues returns all distinct values of a key, either sorted by value or
by descending frequency.
*/
func (ms *MemoryStorage[T]) AllValues(key data.AnnoKey, mostFrequentFirst bool) []string {
	idx, ok := ms.byKey[key]
	if !ok {
		return nil
	}

	res := make([]string, len(idx.vals))
	copy(res, idx.vals)

	if mostFrequentFirst {
		sort.SliceStable(res, func(i, j int) bool {
			return len(idx.items[res[i]]) > len(idx.items[res[j]])
		})
	}

	return res
}

/*
LargestItem returns the largest item which ever carried an annotation.
Removals do not shrink it.
*/
func (ms *MemoryStorage[T]) LargestItem() (T, bool) {
	return ms.largest, ms.hasLargest
}

/*
GuessMaxCount estimates the number of items with an annotation value in the
inclusive range [lower, upper].
*/
func (ms *MemoryStorage[T]) GuessMaxCount(ns *string, name string, lower string, upper string) int {
	var histos [][]string
	var sizes []int

	for _, idx := range ms.matchingIndexes(ns, name) {
		histos = append(histos, ms.histograms[*idx.key])
		sizes = append(sizes, idx.count)
	}

	return guessFromHistograms(histos, sizes, lower, upper)
}

/*
GuessMaxCountRegex estimates the number of items whose value matches the
given pattern.
*/
func (ms *MemoryStorage[T]) GuessMaxCountRegex(ns *string, name string, pattern string) int {
	if prefix, ok := RegexPrefix(pattern); ok {
		return ms.GuessMaxCount(ns, name, prefix, prefix+"￿")
	}

	// Without a usable prefix assume that every value may match

	return ms.CountForName(ns, name)
}

/*
CalculateStatistics rebuilds the value histograms used by the estimation
functions.
*/
func (ms *MemoryStorage[T]) CalculateStatistics() error {
	ms.histograms = make(map[data.AnnoKey][]string)

	for key, idx := range ms.byKey {
		sample := make([]string, 0, minInt(idx.count, MaxSampledAnnotations))

		if idx.count <= MaxSampledAnnotations {
			for _, val := range idx.vals {
				for range idx.items[val] {
					sample = append(sample, val)
				}
			}
		} else {
			stride := idx.count / MaxSampledAnnotations
			n := 0
			for _, val := range idx.vals {
				for range idx.items[val] {
					if n%stride == 0 && len(sample) < MaxSampledAnnotations {
						sample = append(sample, val)
					}
					n++
				}
			}
		}

		ms.histograms[key] = buildHistogram(sample)
	}

	return nil
}

/*
Load reads the annotations from a snapshot file in the given directory.
*/
func (ms *MemoryStorage[T]) Load(location string) error {
	f, err := os.Open(filepath.Join(location, StorageFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return ms.Clear()
		}
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	return ms.ReadFrom(f)
}

/*
Save writes the annotations to a snapshot file in the given directory.
*/
func (ms *MemoryStorage[T]) Save(location string) error {
	if err := os.MkdirAll(location, 0770); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	f, err := os.Create(filepath.Join(location, StorageFileName))
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	if err := ms.WriteTo(f); err != nil {
		return err
	}

	return f.Sync()
}

/*
Close releases all resources held by the storage.
*/
func (ms *MemoryStorage[T]) Close() error {
	return nil
}

// Iterator
// ========

/*
memoryIterator walks the value indexes of one annotation name lazily. An
exact value short-circuits to a single item list per index, otherwise all
values are visited in sorted order and checked against the filter.
*/
type memoryIterator[T Item] struct {
	indexes []*valueIndex[T]
	exact   *string
	filter  func(val string) bool

	started  bool
	ki       int
	vi       int
	ii       int
	curItems []T
}

func (it *memoryIterator[T]) Next() (ItemMatch[T], bool) {
	for {
		if it.ii < len(it.curItems) {
			m := ItemMatch[T]{Item: it.curItems[it.ii], Key: it.indexes[it.ki].key}
			it.ii++
			return m, true
		}

		if !it.advance() {
			var zero ItemMatch[T]
			return zero, false
		}
	}
}

/*
advance moves to the next non-empty item list. It returns false once all
indexes are exhausted.
*/
func (it *memoryIterator[T]) advance() bool {
	for it.ki < len(it.indexes) {
		idx := it.indexes[it.ki]

		if it.exact != nil {
			if !it.started {
				it.started = true
				it.curItems = idx.items[*it.exact]
				it.ii = 0
				if len(it.curItems) > 0 {
					return true
				}
			}
		} else {
			for it.vi < len(idx.vals) {
				val := idx.vals[it.vi]
				it.vi++

				if it.filter != nil && !it.filter(val) {
					continue
				}

				it.curItems = idx.items[val]
				it.ii = 0
				return true
			}
		}

		it.ki++
		it.vi = 0
		it.started = false
		it.curItems = nil
	}

	return false
}

func (it *memoryIterator[T]) Err() error {
	return nil
}

func minInt(a int, b int) int {
	if a < b {
		return a
	}
	return b
}
