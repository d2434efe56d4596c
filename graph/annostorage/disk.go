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
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/annisdb/graph/util"
	badger "github.com/dgraph-io/badger/v4"
)

/*
BadgerDirName is the name of the Badger directory of a disk storage.
*/
const BadgerDirName = "badgerdb"

/*
MetaFileName is the name of the metadata snapshot of a disk storage.
*/
const MetaFileName = "annometa.bin"

/*
Key prefixes of the Badger key space. The by-item index maps

	a <item> <ns> 0x00 <name>  ->  value

while the inverse index holds one empty entry

	i <ns> 0x00 <name> 0x00 <value> 0x00 <item>

per annotation. Item keys have a fixed length so both layouts can be parsed
from either end even if a value contains zero bytes.
*/
const (
	prefixByItem  = 'a'
	prefixInverse = 'i'
)

/*
DiskStorage is the Badger backed annotation store for corpora which do not
fit into main memory. Badger's memtable acts as the bounded C0 of the
log-structured layout, its on-disk levels as the compacted C1 and the
metadata snapshot written by Save as C2.

Key counts, histograms and the largest item are kept in memory and restored
from the metadata snapshot.
*/
type DiskStorage[T Item] struct {
	codec      Codec[T]
	db         *badger.DB
	location   string
	counts     map[data.AnnoKey]int
	histograms map[data.AnnoKey][]string
	uniqueKeys map[data.AnnoKey]bool
	largest    T
	hasLargest bool
	total      int
}

/*
NewDiskNodeStorage creates a disk based annotation store for nodes in the
given directory. The node_name annotation is enforced to be unique.
*/
func NewDiskNodeStorage(location string) (*DiskStorage[data.NodeID], error) {
	ds, err := NewDiskStorage(NodeCodec, location)
	if err != nil {
		return nil, err
	}
	ds.uniqueKeys[data.AnnoKey{Name: data.NodeNameAttr, NS: data.AnnisNamespace}] = true
	return ds, nil
}

/*
NewDiskStorage creates a disk based annotation store for items serialized by
the given codec in the given directory.
*/
func NewDiskStorage[T Item](codec Codec[T], location string) (*DiskStorage[T], error) {
	ds := &DiskStorage[T]{
		codec:      codec,
		counts:     make(map[data.AnnoKey]int),
		histograms: make(map[data.AnnoKey][]string),
		uniqueKeys: make(map[data.AnnoKey]bool),
	}

	if err := ds.Load(location); err != nil {
		return nil, err
	}

	return ds, nil
}

/*
Load opens the Badger directory and reads the metadata snapshot.
*/
func (ds *DiskStorage[T]) Load(location string) error {
	if ds.db != nil {
		ds.db.Close()
		ds.db = nil
	}

	opts := badger.DefaultOptions(filepath.Join(location, BadgerDirName))
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	ds.db = db
	ds.location = location

	return ds.loadMeta()
}

/*
Save syncs the Badger store and writes the metadata snapshot.
*/
func (ds *DiskStorage[T]) Save(location string) error {
	if location != ds.location {
		return &util.GraphError{Type: util.ErrStorageIO,
			Detail: "Disk storage cannot be saved to a different location"}
	}

	if err := ds.db.Sync(); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return ds.saveMeta()
}

/*
Close releases the underlying Badger store.
*/
func (ds *DiskStorage[T]) Close() error {
	if ds.db == nil {
		return nil
	}

	err := ds.db.Close()
	ds.db = nil

	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return nil
}

// Key construction
// ================

func (ds *DiskStorage[T]) itemKey(item T, key data.AnnoKey) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixByItem)
	buf.Write(ds.codec.Encode(item))
	buf.WriteString(key.NS)
	buf.WriteByte(0)
	buf.WriteString(key.Name)
	return buf.Bytes()
}

func (ds *DiskStorage[T]) itemPrefix(item T) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixByItem)
	buf.Write(ds.codec.Encode(item))
	return buf.Bytes()
}

func namePrefix(key data.AnnoKey) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixInverse)
	buf.WriteString(key.NS)
	buf.WriteByte(0)
	buf.WriteString(key.Name)
	buf.WriteByte(0)
	return buf.Bytes()
}

func valuePrefix(key data.AnnoKey, val string) []byte {
	buf := bytes.NewBuffer(namePrefix(key))
	buf.WriteString(val)
	buf.WriteByte(0)
	return buf.Bytes()
}

func (ds *DiskStorage[T]) inverseKey(key data.AnnoKey, val string, item T) []byte {
	buf := bytes.NewBuffer(valuePrefix(key, val))
	buf.Write(ds.codec.Encode(item))
	return buf.Bytes()
}

/*
parseInverse extracts value and item from an inverse key given the name
prefix it was found under.
*/
func (ds *DiskStorage[T]) parseInverse(key []byte, prefixLen int) (string, T) {
	tail := key[prefixLen:]
	item := ds.codec.Decode(tail[len(tail)-ds.codec.Size:])
	return string(tail[:len(tail)-ds.codec.Size-1]), item
}

/*
parseItemKey extracts the annotation key from a by-item key.
*/
func (ds *DiskStorage[T]) parseItemKey(key []byte) data.AnnoKey {
	tail := key[1+ds.codec.Size:]
	sep := bytes.IndexByte(tail, 0)
	return data.AnnoKey{NS: string(tail[:sep]), Name: string(tail[sep+1:])}
}

// Storage interface
// =================

/*
Insert adds an annotation to an item. Re-adding an identical annotation is a
no-op, a different value for an existing key overwrites.
*/
func (ds *DiskStorage[T]) Insert(item T, anno data.Annotation) error {
	added := false

	err := ds.db.Update(func(txn *badger.Txn) error {
		ik := ds.itemKey(item, anno.Key)

		if it, err := txn.Get(ik); err == nil {
			oldVal, err := it.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(oldVal) == anno.Val {
				return nil
			}
			if err := ds.checkUnique(txn, item, anno); err != nil {
				return err
			}
			if err := txn.Delete(ds.inverseKey(anno.Key, string(oldVal), item)); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		} else {
			if err := ds.checkUnique(txn, item, anno); err != nil {
				return err
			}
			added = true
		}

		if err := txn.Set(ik, []byte(anno.Val)); err != nil {
			return err
		}
		return txn.Set(ds.inverseKey(anno.Key, anno.Val, item), nil)
	})

	if err != nil {
		if ge, ok := err.(*util.GraphError); ok {
			return ge
		}
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	if added {
		ds.counts[anno.Key]++
		ds.total++

		if !ds.hasLargest || ds.codec.Less(ds.largest, item) {
			ds.largest = item
			ds.hasLargest = true
		}
	}

	return nil
}

/*
checkUnique verifies that a value under a unique key is not already carried
by a different item.
*/
func (ds *DiskStorage[T]) checkUnique(txn *badger.Txn, item T, anno data.Annotation) error {
	if !ds.uniqueKeys[anno.Key] {
		return nil
	}

	prefix := valuePrefix(anno.Key, anno.Val)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		_, existing := ds.parseInverse(it.Item().Key(), len(namePrefix(anno.Key)))
		if existing != item {
			return &util.GraphError{Type: util.ErrInvalidUpdate,
				Detail: "Value " + anno.Val + " of " + anno.Key.String() + " is already in use"}
		}
	}

	return nil
}

/*
Value returns the value of an annotation for an item.
*/
func (ds *DiskStorage[T]) Value(item T, key data.AnnoKey) (string, bool) {
	var val string
	found := false

	ds.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(ds.itemKey(item, key))
		if err != nil {
			return nil
		}
		raw, err := it.ValueCopy(nil)
		if err != nil {
			return nil
		}
		val = string(raw)
		found = true
		return nil
	})

	return val, found
}

/*
Annotations returns all annotations of an item ordered by key.
*/
func (ds *DiskStorage[T]) Annotations(item T) []data.Annotation {
	var res []data.Annotation

	ds.db.View(func(txn *badger.Txn) error {
		prefix := ds.itemPrefix(item)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := ds.parseItemKey(it.Item().Key())
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, data.Annotation{Key: key, Val: string(val)})
		}
		return nil
	})

	sort.Slice(res, func(i, j int) bool {
		return res[i].Key.Compare(res[j].Key) < 0
	})

	return res
}

/*
KeysForItem returns the annotation keys of an item, filtered by an optional
namespace and name.
*/
func (ds *DiskStorage[T]) KeysForItem(item T, ns *string, name *string) []*data.AnnoKey {
	var res []*data.AnnoKey

	for _, anno := range ds.Annotations(item) {
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
func (ds *DiskStorage[T]) Remove(item T, key data.AnnoKey) (string, bool) {
	var val string
	found := false

	ds.db.Update(func(txn *badger.Txn) error {
		ik := ds.itemKey(item, key)

		it, err := txn.Get(ik)
		if err != nil {
			return nil
		}
		raw, err := it.ValueCopy(nil)
		if err != nil {
			return nil
		}

		if err := txn.Delete(ik); err != nil {
			return err
		}
		if err := txn.Delete(ds.inverseKey(key, string(raw), item)); err != nil {
			return err
		}

		val = string(raw)
		found = true
		return nil
	})

	if found {
		ds.counts[key]--
		if ds.counts[key] <= 0 {
			delete(ds.counts, key)
			delete(ds.histograms, key)
		}
		ds.total--
	}

	return val, found
}

/*
RemoveItem deletes all annotations of an item in one pass.
*/
func (ds *DiskStorage[T]) RemoveItem(item T) error {
	for _, anno := range ds.Annotations(item) {
		ds.Remove(item, anno.Key)
	}
	return nil
}

/*
Clear removes all annotations.
*/
func (ds *DiskStorage[T]) Clear() error {
	if err := ds.db.DropAll(); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	ds.counts = make(map[data.AnnoKey]int)
	ds.histograms = make(map[data.AnnoKey][]string)
	ds.total = 0
	ds.hasLargest = false

	var zero T
	ds.largest = zero

	return nil
}

/*
QNames returns all qualified keys which exist for an annotation name.
*/
func (ds *DiskStorage[T]) QNames(name string) []data.AnnoKey {
	var res []data.AnnoKey

	for key := range ds.counts {
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
func (ds *DiskStorage[T]) AnnotationKeys() []data.AnnoKey {
	res := make([]data.AnnoKey, 0, len(ds.counts))

	for key := range ds.counts {
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
func (ds *DiskStorage[T]) TotalCount() int {
	return ds.total
}

/*
CountForName returns the number of annotations for a name filtered by an
optional namespace.
*/
func (ds *DiskStorage[T]) CountForName(ns *string, name string) int {
	count := 0

	for _, key := range ds.matchingKeys(ns, name) {
		count += ds.counts[key]
	}

	return count
}

/*
matchingKeys returns the qualified keys matching a namespace filter and an
annotation name in deterministic order.
*/
func (ds *DiskStorage[T]) matchingKeys(ns *string, name string) []data.AnnoKey {
	if ns != nil {
		key := data.AnnoKey{Name: name, NS: *ns}
		if _, ok := ds.counts[key]; ok {
			return []data.AnnoKey{key}
		}
		return nil
	}

	return ds.QNames(name)
}

/*
ExactSearch returns all items with a given annotation name, filtered by an
optional namespace and a value constraint.
*/
func (ds *DiskStorage[T]) ExactSearch(ns *string, name string, value ValueSearch) MatchIterator[T] {
	keys := ds.matchingKeys(ns, name)

	it := &diskIterator[T]{ds: ds}

	for _, key := range keys {
		shared := data.InternedKey(key.NS, key.Name)

		switch value.Filter {
		case ValueEqual:
			it.scans = append(it.scans, diskScan[T]{
				prefix: valuePrefix(key, value.Value), parseAt: len(namePrefix(key)), key: shared})
		case ValueNotEqual:
			exclude := value.Value
			it.scans = append(it.scans, diskScan[T]{
				prefix: namePrefix(key), parseAt: len(namePrefix(key)), key: shared,
				filter: func(val string) bool { return val != exclude }})
		default:
			it.scans = append(it.scans, diskScan[T]{
				prefix: namePrefix(key), parseAt: len(namePrefix(key)), key: shared})
		}
	}

	return it
}

/*
RegexSearch returns all items whose annotation value matches the given
pattern. The pattern is implicitly anchored at both ends.
*/
func (ds *DiskStorage[T]) RegexSearch(ns *string, name string, pattern string,
	negated bool) (MatchIterator[T], error) {

	re, err := CompileRegex(pattern)
	if err != nil {
		return nil, err
	}

	it := &diskIterator[T]{ds: ds}

	for _, key := range ds.matchingKeys(ns, name) {
		it.scans = append(it.scans, diskScan[T]{
			prefix: namePrefix(key), parseAt: len(namePrefix(key)),
			key:    data.InternedKey(key.NS, key.Name),
			filter: func(val string) bool { return re.MatchString(val) != negated }})
	}

	return it, nil
}

/*
MostFrequentValue estimates the most frequent value of an annotation name.
*/
func (ds *DiskStorage[T]) MostFrequentValue(ns *string, name string) (string, bool) {
	best := ""
	bestCount := -1

	for _, key := range ds.matchingKeys(ns, name) {
		ds.scanValues(key, func(val string, count int) {
			if count > bestCount {
				best = val
				bestCount = count
			}
		})
	}

	return best, bestCount >= 0
}

/*
AllValues returns all distinct values of a key, either sorted by value or by
descending frequency.
*/
func (ds *DiskStorage[T]) AllValues(key data.AnnoKey, mostFrequentFirst bool) []string {
	var res []string
	counts := make(map[string]int)

	ds.scanValues(key, func(val string, count int) {
		res = append(res, val)
		counts[val] = count
	})

	if mostFrequentFirst {
		sort.SliceStable(res, func(i, j int) bool {
			return counts[res[i]] > counts[res[j]]
		})
	}

	return res
}

/*
scanValues walks all distinct values of a key in sorted order and reports
the number of items per value.
*/
func (ds *DiskStorage[T]) scanValues(key data.AnnoKey, visit func(val string, count int)) {
	ds.db.View(func(txn *badger.Txn) error {
		prefix := namePrefix(key)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		current := ""
		count := 0
		started := false

		for it.Rewind(); it.Valid(); it.Next() {
			val, _ := ds.parseInverse(it.Item().Key(), len(prefix))

			if !started || val != current {
				if started {
					visit(current, count)
				}
				current = val
				count = 0
				started = true
			}
			count++
		}

		if started {
			visit(current, count)
		}
		return nil
	})
}

/*
LargestItem returns the largest item which ever carried an annotation.
Removals do not shrink it.
*/
func (ds *DiskStorage[T]) LargestItem() (T, bool) {
	return ds.largest, ds.hasLargest
}

/*
GuessMaxCount estimates the number of items with an annotation value in the
inclusive range [lower, upper].
*/
func (ds *DiskStorage[T]) GuessMaxCount(ns *string, name string, lower string, upper string) int {
	var histos [][]string
	var sizes []int

	for _, key := range ds.matchingKeys(ns, name) {
		histos = append(histos, ds.histograms[key])
		sizes = append(sizes, ds.counts[key])
	}

	return guessFromHistograms(histos, sizes, lower, upper)
}

/*
GuessMaxCountRegex estimates the number of items whose value matches the
given pattern.
*/
func (ds *DiskStorage[T]) GuessMaxCountRegex(ns *string, name string, pattern string) int {
	if prefix, ok := RegexPrefix(pattern); ok {
		return ds.GuessMaxCount(ns, name, prefix, prefix+"￿")
	}

	return ds.CountForName(ns, name)
}

/*
CalculateStatistics rebuilds the value histograms used by the estimation
functions.
*/
func (ds *DiskStorage[T]) CalculateStatistics() error {
	ds.histograms = make(map[data.AnnoKey][]string)

	for key, count := range ds.counts {
		stride := 1
		if count > MaxSampledAnnotations {
			stride = count / MaxSampledAnnotations
		}

		var sample []string
		n := 0

		ds.db.View(func(txn *badger.Txn) error {
			prefix := namePrefix(key)

			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if n%stride == 0 && len(sample) < MaxSampledAnnotations {
					val, _ := ds.parseInverse(it.Item().Key(), len(prefix))
					sample = append(sample, val)
				}
				n++
			}
			return nil
		})

		ds.histograms[key] = buildHistogram(sample)
	}

	return nil
}

// Metadata snapshot
// =================

/*
diskMeta is the serialized form of the in-memory state of a disk storage.
*/
type diskMeta[T Item] struct {
	Counts     map[data.AnnoKey]int
	Histograms map[data.AnnoKey][]string
	UniqueKeys []data.AnnoKey
	Largest    T
	HasLargest bool
	Total      int
}

func (ds *DiskStorage[T]) saveMeta() error {
	meta := diskMeta[T]{
		Counts:     ds.counts,
		Histograms: ds.histograms,
		Largest:    ds.largest,
		HasLargest: ds.hasLargest,
		Total:      ds.total,
	}

	for key := range ds.uniqueKeys {
		meta.UniqueKeys = append(meta.UniqueKeys, key)
	}

	f, err := os.Create(filepath.Join(ds.location, MetaFileName))
	if err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}

	return f.Sync()
}

func (ds *DiskStorage[T]) loadMeta() error {
	f, err := os.Open(filepath.Join(ds.location, MetaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &util.GraphError{Type: util.ErrStorageIO, Detail: err.Error()}
	}
	defer f.Close()

	var meta diskMeta[T]

	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return &util.GraphError{Type: util.ErrCorrupted, Detail: err.Error()}
	}

	ds.counts = meta.Counts
	ds.histograms = meta.Histograms
	ds.largest = meta.Largest
	ds.hasLargest = meta.HasLargest
	ds.total = meta.Total

	for _, key := range meta.UniqueKeys {
		ds.uniqueKeys[key] = true
	}

	return nil
}

// Iterator
// ========

/*
diskScan describes one prefix range of the inverse index to iterate.
*/
type diskScan[T Item] struct {
	prefix  []byte
	parseAt int
	key     *data.AnnoKey
	filter  func(val string) bool
}

/*
diskIterator streams matches from the inverse index. A read transaction is
held open until the iterator is exhausted.
*/
type diskIterator[T Item] struct {
	ds    *DiskStorage[T]
	scans []diskScan[T]

	txn  *badger.Txn
	it   *badger.Iterator
	si   int
	done bool
	err  error
}

func (di *diskIterator[T]) Next() (ItemMatch[T], bool) {
	var zero ItemMatch[T]

	if di.done {
		return zero, false
	}

	if di.txn == nil {
		di.txn = di.ds.db.NewTransaction(false)
	}

	for di.si < len(di.scans) {
		scan := di.scans[di.si]

		if di.it == nil {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = scan.prefix
			opts.PrefetchValues = false

			di.it = di.txn.NewIterator(opts)
			di.it.Rewind()
		}

		for di.it.Valid() {
			val, item := di.ds.parseInverse(di.it.Item().KeyCopy(nil), scan.parseAt)
			di.it.Next()

			if scan.filter == nil || scan.filter(val) {
				return ItemMatch[T]{Item: item, Key: scan.key}, true
			}
		}

		di.it.Close()
		di.it = nil
		di.si++
	}

	di.txn.Discard()
	di.txn = nil
	di.done = true

	return zero, false
}

func (di *diskIterator[T]) Err() error {
	return di.err
}
