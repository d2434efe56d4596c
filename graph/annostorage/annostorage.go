/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package annostorage contains the annotation stores of the graph.

An annotation store is a key-value index from item identifiers (node IDs or
edges) to qualified annotations. Lookups are possible in both directions:
all annotations of one item, and all items carrying a given annotation key
or (key, value) pair. Per-key value histograms provide the count estimates
the query planner works with.

Two implementations exist: MemoryStorage keeps everything in hash and
sorted-slice indexes and serializes to a single compressed blob, while
DiskStorage is backed by a Badger key-value store for corpora which do not
fit into main memory.
*/
package annostorage

import (
	"encoding/binary"
	"regexp"
	"regexp/syntax"

	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/common/datautil"
)

/*
MaxHistogramBuckets is the maximum number of histogram buckets which are
kept per annotation key for value estimates.
*/
const MaxHistogramBuckets = 250

/*
MaxSampledAnnotations is the maximum number of annotation values which are
sampled per key when statistics are calculated.
*/
const MaxSampledAnnotations = 2500

/*
Item is the constraint for types which can carry annotations.
*/
type Item interface {
	comparable
}

/*
ItemMatch is a single item together with the qualified name of the matched
annotation. The key pointer is interned and shared.
*/
type ItemMatch[T Item] struct {
	Item T
	Key  *data.AnnoKey
}

/*
MatchIterator is a finite lazy sequence of item matches. After Next returned
false the Err method reports a possible iteration failure.
*/
type MatchIterator[T Item] interface {

	/*
		Next returns the next match. The boolean return value is false once
		the iterator is exhausted.
	*/
	Next() (ItemMatch[T], bool)

	/*
		Err returns the first error which occurred during iteration.
	*/
	Err() error
}

/*
ValueFilter decides how a value constrains an annotation search.
*/
type ValueFilter int

/*
Possible value filters of an annotation search.
*/
const (
	ValueAny      ValueFilter = iota // Any value matches
	ValueEqual                       // Only the given value matches
	ValueNotEqual                    // Everything but the given value matches
)

/*
ValueSearch is the value constraint of an annotation search.
*/
type ValueSearch struct {
	Filter ValueFilter
	Value  string
}

/*
AnyValue returns an unconstrained value search.
*/
func AnyValue() ValueSearch {
	return ValueSearch{Filter: ValueAny}
}

/*
EqualValue returns a value search for one exact value.
*/
func EqualValue(val string) ValueSearch {
	return ValueSearch{Filter: ValueEqual, Value: val}
}

/*
NotEqualValue returns a value search excluding one exact value.
*/
func NotEqualValue(val string) ValueSearch {
	return ValueSearch{Filter: ValueNotEqual, Value: val}
}

/*
Storage is the interface of all annotation store implementations. A nil
namespace pointer in search functions matches all namespaces of an
annotation name.
*/
type Storage[T Item] interface {

	/*
		Insert adds an annotation to an item. Re-adding an identical
		annotation is a no-op, a different value for an existing key
		overwrites.
	*/
	Insert(item T, anno data.Annotation) error

	/*
		Value returns the value of an annotation for an item.
	*/
	Value(item T, key data.AnnoKey) (string, bool)

	/*
		Annotations returns all annotations of an item ordered by key.
	*/
	Annotations(item T) []data.Annotation

	/*
		KeysForItem returns the annotation keys of an item, filtered by an
		optional namespace and name.
	*/
	KeysForItem(item T, ns *string, name *string) []*data.AnnoKey

	/*
		Remove deletes one annotation of an item and returns its former
		value.
	*/
	Remove(item T, key data.AnnoKey) (string, bool)

	/*
		RemoveItem deletes all annotations of an item in one pass.
	*/
	RemoveItem(item T) error

	/*
		Clear removes all annotations.
	*/
	Clear() error

	/*
		QNames returns all qualified keys which exist for an annotation name.
	*/
	QNames(name string) []data.AnnoKey

	/*
		AnnotationKeys returns all keys of the storage.
	*/
	AnnotationKeys() []data.AnnoKey

	/*
		TotalCount returns the total number of annotations.
	*/
	TotalCount() int

	/*
		CountForName returns the number of annotations for a name filtered
		by an optional namespace.
	*/
	CountForName(ns *string, name string) int

	/*
		ExactSearch returns all items with a given annotation name, filtered
		by an optional namespace and a value constraint.
	*/
	ExactSearch(ns *string, name string, value ValueSearch) MatchIterator[T]

	/*
		RegexSearch returns all items whose annotation value matches the
		given pattern. The pattern is implicitly anchored at both ends.
	*/
	RegexSearch(ns *string, name string, pattern string, negated bool) (MatchIterator[T], error)

	/*
		GuessMaxCount estimates the number of items with an annotation value
		in the inclusive range [lower, upper]. The estimate is an upper
		bound, not a proof.
	*/
	GuessMaxCount(ns *string, name string, lower string, upper string) int

	/*
		GuessMaxCountRegex estimates the number of items whose value matches
		the given pattern.
	*/
	GuessMaxCountRegex(ns *string, name string, pattern string) int

	/*
		MostFrequentValue estimates the most frequent value of an annotation
		name.
	*/
	MostFrequentValue(ns *string, name string) (string, bool)

	/*
		AllValues returns all distinct values of a key, either sorted by
		value or by descending frequency.
	*/
	AllValues(key data.AnnoKey, mostFrequentFirst bool) []string

	/*
		LargestItem returns the largest item which ever carried an
		annotation. Removals do not shrink it.
	*/
	LargestItem() (T, bool)

	/*
		CalculateStatistics rebuilds the value histograms used by the
		estimation functions.
	*/
	CalculateStatistics() error

	/*
		Load reads the annotations from a storage location.
	*/
	Load(location string) error

	/*
		Save writes the annotations to a storage location.
	*/
	Save(location string) error

	/*
		Close releases all resources held by the storage.
	*/
	Close() error
}

// Item codecs
// ===========

/*
Codec describes how items are ordered and serialized into order-preserving
binary keys.
*/
type Codec[T Item] struct {
	Size   int                // Number of bytes of an encoded item
	Encode func(item T) []byte
	Decode func(key []byte) T
	Less   func(a T, b T) bool
}

/*
NodeCodec is the codec for node items.
*/
var NodeCodec = Codec[data.NodeID]{
	Size: 8,
	Encode: func(item data.NodeID) []byte {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(item))
		return buf[:]
	},
	Decode: func(key []byte) data.NodeID {
		return data.NodeID(binary.BigEndian.Uint64(key))
	},
	Less: func(a data.NodeID, b data.NodeID) bool {
		return a < b
	},
}

/*
EdgeCodec is the codec for edge items.
*/
var EdgeCodec = Codec[data.Edge]{
	Size: 16,
	Encode: func(item data.Edge) []byte {
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[:8], uint64(item.Source))
		binary.BigEndian.PutUint64(buf[8:], uint64(item.Target))
		return buf[:]
	},
	Decode: func(key []byte) data.Edge {
		return data.Edge{
			Source: data.NodeID(binary.BigEndian.Uint64(key[:8])),
			Target: data.NodeID(binary.BigEndian.Uint64(key[8:])),
		}
	},
	Less: func(a data.Edge, b data.Edge) bool {
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	},
}

// Regular expression handling
// ===========================

/*
regexCache memoizes compiled patterns across all annotation searches.
*/
var regexCache = datautil.NewMapCache(1000, 0)

/*
CompileRegex compiles a value pattern with full-match anchoring. Compiled
patterns are memoized.
*/
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}

	regexCache.Put(pattern, re)
	return re, nil
}

/*
RegexLiteral returns the exact string a pattern reduces to, if the parsed
pattern is a plain literal without case folding.
*/
func RegexLiteral(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}

	re = re.Simplify()

	for re.Op == syntax.OpCapture && len(re.Sub) == 1 {
		re = re.Sub[0]
	}

	if re.Op == syntax.OpEmptyMatch {
		return "", true
	}

	if re.Op == syntax.OpLiteral && re.Flags&syntax.FoldCase == 0 {
		return string(re.Rune), true
	}

	return "", false
}

/*
RegexPrefix returns the literal prefix all matches of a pattern share.
The boolean return value is false if no usable prefix exists.
*/
func RegexPrefix(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}

	re = re.Simplify()

	for (re.Op == syntax.OpCapture || re.Op == syntax.OpConcat) && len(re.Sub) > 0 {
		re = re.Sub[0]
	}

	if re.Op == syntax.OpLiteral && re.Flags&syntax.FoldCase == 0 && len(re.Rune) > 0 {
		return string(re.Rune), true
	}

	return "", false
}

/*
emptyIterator is a MatchIterator without any entries.
*/
type emptyIterator[T Item] struct{}

func (it emptyIterator[T]) Next() (ItemMatch[T], bool) {
	var zero ItemMatch[T]
	return zero, false
}

func (it emptyIterator[T]) Err() error {
	return nil
}

/*
EmptyIterator returns a MatchIterator without any entries.
*/
func EmptyIterator[T Item]() MatchIterator[T] {
	return emptyIterator[T]{}
}
