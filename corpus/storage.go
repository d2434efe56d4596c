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
Package corpus contains the corpus storage which manages a directory of
corpora, caches their loaded graphs and runs queries against them.

All public operations address corpora by name. Graphs are loaded on first
use and kept in a bounded LRU cache; updates are serialized per corpus and
written back by a background writer pool which is joined on Close. A file
based lock protects the storage directory against concurrent processes.
*/
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"devt.de/krotik/annisdb/aql"
	"devt.de/krotik/annisdb/aql/interpreter"
	"devt.de/krotik/annisdb/graph"
	"devt.de/krotik/annisdb/graph/data"
	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/common/lockutil"
	"devt.de/krotik/common/logutil"
	"devt.de/krotik/common/pools"
	"golang.org/x/text/language"
)

/*
LockFileName is the name of the lock file of a storage directory.
*/
const LockFileName = "corpus-storage.lock"

/*
CurrentDirName is the name of the directory holding the live graph of a
corpus.
*/
const CurrentDirName = "current"

/*
BackupDirName is the name of the backup directory of a corpus. An existing
backup wins over the current directory at open.
*/
const BackupDirName = "backup"

/*
lockFileInterval is the watch interval of the storage lock file.
*/
const lockFileInterval = 100 * time.Millisecond

/*
DefaultCacheSizeMB is the default memory budget of the graph cache.
*/
const DefaultCacheSizeMB = 1024

/*
Order determines how Find sorts its results.
*/
type Order int

/*
All result orders.
*/
const (
	OrderNormal     Order = iota // Document path, text position, node name
	OrderInverted                // Reverse of the normal order
	OrderRandomized              // Seeded shuffle
	OrderNotSorted               // Order of the execution plan
)

/*
Options control the behavior of a corpus storage.
*/
type Options struct {
	CacheSizeMB        int           // Memory budget of the graph cache (default 1024)
	DiskBased          bool          // Store node annotations of new corpora in badger
	QueryTimeout       time.Duration // Timeout per query (0 disables)
	OptimizationRounds int           // Join order optimization rounds (0 uses the default)
	RandomSeed         int64         // Seed for the randomized result order
	Quirks             bool          // Compatibility mode of legacy corpus tools
	QuirksLocale       language.Tag  // Collation locale of the quirks sort order
	MaxBufferedMatches int           // In-memory sort buffer before spilling (default 128k)
	MaxResultSetSize   int           // Hard cap on materialized matches (0 disables)
}

/*
CorpusInfo describes one corpus of the storage.
*/
type CorpusInfo struct {
	Name       string
	LoadStatus string // "loaded" or "not loaded"
	MemorySize int64  // Estimated memory footprint in bytes when loaded
}

/*
CountExtra is the result of a counting query with document counts.
*/
type CountExtra struct {
	MatchCount    int
	DocumentCount int
}

/*
corpusEntry serializes access to one corpus.
*/
type corpusEntry struct {
	sync.RWMutex
}

/*
Storage manages a directory of corpora.
*/
type Storage struct {
	dir     string
	opts    Options
	lock    *lockutil.LockFile
	cache   *graphCache
	writers *pools.ThreadPool
	logger  logutil.Logger

	mutex   sync.Mutex
	corpora map[string]*corpusEntry
}

/*
NewStorage opens a corpus storage directory. The directory is created if it
is missing. A lock held by another process fails with ErrAlreadyLocked.
*/
func NewStorage(dir string, opts Options) (*Storage, error) {
	if opts.CacheSizeMB <= 0 {
		opts.CacheSizeMB = DefaultCacheSizeMB
	}
	if opts.MaxBufferedMatches <= 0 {
		opts.MaxBufferedMatches = defaultMaxBufferedMatches
	}
	if opts.QuirksLocale == (language.Tag{}) {
		opts.QuirksLocale = language.AmericanEnglish
	}

	if err := os.MkdirAll(dir, 0770); err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	lock := lockutil.NewLockFile(filepath.Join(dir, LockFileName), lockFileInterval)
	if err := lock.Start(); err != nil {
		return nil, NewStorageError(ErrAlreadyLocked, err.Error())
	}

	s := &Storage{
		dir:     dir,
		opts:    opts,
		lock:    lock,
		cache:   newGraphCache(int64(opts.CacheSizeMB) * 1024 * 1024),
		writers: pools.NewThreadPool(),
		logger:  logutil.GetLogger("corpus"),
		corpora: make(map[string]*corpusEntry),
	}

	s.writers.SetWorkerCount(1, false)

	if err := s.scan(); err != nil {
		lock.Finish()
		return nil, err
	}

	return s, nil
}

/*
scan discovers the corpora of the storage directory without loading them.
*/
func (s *Storage) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return NewStorageError(ErrLoadingFailed, err.Error())
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hasCurrent, _ := fileutil.PathExists(
			filepath.Join(s.dir, entry.Name(), CurrentDirName))
		hasBackup, _ := fileutil.PathExists(
			filepath.Join(s.dir, entry.Name(), BackupDirName))

		if hasCurrent || hasBackup {
			s.corpora[decodeDirName(entry.Name())] = &corpusEntry{}
		}
	}

	return nil
}

/*
entry returns the lock entry of a corpus (nil if the corpus is unknown).
*/
func (s *Storage) entry(name string) *corpusEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.corpora[name]
}

/*
corpusDir returns the directory of a corpus.
*/
func (s *Storage) corpusDir(name string) string {
	return filepath.Join(s.dir, encodeDirName(name))
}

/*
List returns information about all corpora of the storage ordered by name.
*/
func (s *Storage) List() []CorpusInfo {
	s.mutex.Lock()
	names := make([]string, 0, len(s.corpora))
	for name := range s.corpora {
		names = append(names, name)
	}
	s.mutex.Unlock()

	sort.Strings(names)

	res := make([]CorpusInfo, 0, len(names))
	for _, name := range names {
		info := CorpusInfo{Name: name, LoadStatus: "not loaded"}

		if size, loaded := s.cache.status(name); loaded {
			info.LoadStatus = "loaded"
			info.MemorySize = size
		}

		res = append(res, info)
	}

	return res
}

/*
Exists checks if a corpus exists.
*/
func (s *Storage) Exists(name string) bool {
	return s.entry(name) != nil
}

/*
CreateCorpus creates a new empty corpus.
*/
func (s *Storage) CreateCorpus(name string) error {
	s.mutex.Lock()
	if _, ok := s.corpora[name]; ok {
		s.mutex.Unlock()
		return NewStorageError(ErrCorpusExists, name)
	}
	entry := &corpusEntry{}
	s.corpora[name] = entry
	s.mutex.Unlock()

	entry.Lock()
	defer entry.Unlock()

	currentDir := filepath.Join(s.corpusDir(name), CurrentDirName)

	var g *graph.Graph
	var err error

	if s.opts.DiskBased {
		if err := os.MkdirAll(currentDir, 0770); err != nil {
			return NewStorageError(ErrLoadingFailed, err.Error())
		}
		g, err = graph.NewDiskGraph(currentDir)
		if err == nil {
			err = g.Persist()
		}
	} else {
		g = graph.NewGraph()
		err = g.PersistTo(currentDir)
	}

	if err == nil {
		err = g.Close()
	}
	if err != nil {
		return err
	}

	config := &CorpusConfig{CorpusSize: &CorpusSize{Unit: TokenUnit()}}
	return config.Save(s.corpusDir(name))
}

/*
Delete removes a corpus and its directory.
*/
func (s *Storage) Delete(name string) error {
	entry := s.entry(name)
	if entry == nil {
		return NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.Lock()
	defer entry.Unlock()

	if g := s.cache.remove(name); g != nil {
		if err := g.Close(); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(s.corpusDir(name)); err != nil {
		return NewStorageError(ErrLoadingFailed, err.Error())
	}

	s.mutex.Lock()
	delete(s.corpora, name)
	s.mutex.Unlock()

	return nil
}

/*
Close joins all background writers, releases all cached graphs and removes
the storage lock.
*/
func (s *Storage) Close() error {
	ce := errorutil.NewCompositeError()

	s.writers.JoinAll()

	for _, g := range s.cache.clear() {
		if err := g.Close(); err != nil {
			ce.Add(err)
		}
	}

	if err := s.lock.Finish(); err != nil {
		ce.Add(err)
	}

	if ce.HasErrors() {
		return ce
	}
	return nil
}

/*
loadGraph returns the loaded graph of a corpus. The caller must hold the
corpus entry lock (read or write). A load failure drops the cache entry.
*/
func (s *Storage) loadGraph(name string) (*graph.Graph, error) {
	for {
		g, loading := s.cache.get(name)
		if g != nil {
			return g, nil
		}

		if loading {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if s.cache.markLoading(name) {
			break
		}
	}

	currentDir := filepath.Join(s.corpusDir(name), CurrentDirName)

	// A backup left behind by an interrupted update wins at open

	backupDir := filepath.Join(s.corpusDir(name), BackupDirName)
	if ok, _ := fileutil.PathExists(backupDir); ok {
		os.RemoveAll(currentDir)
		if err := os.Rename(backupDir, currentDir); err != nil {
			s.cache.finishLoading(name, nil)
			return nil, NewStorageError(ErrLoadingFailed, err.Error())
		}
	}

	g, err := graph.LoadGraph(currentDir, false)
	if err != nil {
		s.cache.finishLoading(name, nil)
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	s.closeEvicted(s.cache.finishLoading(name, g))
	return g, nil
}

/*
closeEvicted closes evicted graphs in the background.
*/
func (s *Storage) closeEvicted(evicted []*graph.Graph) {
	for _, g := range evicted {
		s.writers.AddTask(&closeTask{g: g, logger: s.logger})
	}
}

/*
ApplyUpdate applies an update batch to a corpus and recalculates all
statistics. The batch is journaled before it is applied and the corpus is
persisted in the background.
*/
func (s *Storage) ApplyUpdate(name string, u *graph.GraphUpdate) error {
	return s.applyUpdate(name, u, false)
}

/*
ApplyUpdateKeepStatistics applies an update batch without recalculating
statistics.
*/
func (s *Storage) ApplyUpdateKeepStatistics(name string, u *graph.GraphUpdate) error {
	return s.applyUpdate(name, u, true)
}

func (s *Storage) applyUpdate(name string, u *graph.GraphUpdate, keepStats bool) error {
	entry := s.entry(name)
	if entry == nil {
		return NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.Lock()
	defer entry.Unlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return err
	}

	if keepStats {
		err = g.ApplyUpdateKeepStatistics(u)
	} else {
		err = g.ApplyUpdate(u)
	}

	if err != nil {

		// The in-memory state may be half applied - force a reload

		if g := s.cache.remove(name); g != nil {
			g.Close()
		}
		return err
	}

	s.closeEvicted(s.cache.refresh(name))

	if err := s.updateCorpusSize(name, g); err != nil {
		return err
	}

	s.writers.AddTask(&persistTask{entry: entry, g: g, logger: s.logger})
	return nil
}

/*
updateCorpusSize refreshes the corpus size section of the corpus config.
*/
func (s *Storage) updateCorpusSize(name string, g *graph.Graph) error {
	config, err := LoadCorpusConfig(s.corpusDir(name))
	if err != nil {
		return err
	}

	if config.CorpusSize == nil {
		config.CorpusSize = &CorpusSize{Unit: TokenUnit()}
	}

	ns := data.AnnisNamespace

	if config.CorpusSize.Unit.Name == "segmentation" {
		seg := config.CorpusSize.Unit.Value
		st, err := g.Storage(data.Component{CType: data.Ordering,
			Layer: data.AnnisNamespace, Name: seg})
		if err != nil {
			return err
		}
		config.CorpusSize.Quantity = graph.EdgeCount(st) + 1
	} else {
		config.CorpusSize.Quantity = g.NodeAnnotations().CountForName(&ns, data.TokAttr)
	}

	return config.Save(s.corpusDir(name))
}

/*
persistTask writes a graph back to disk in the background.
*/
type persistTask struct {
	entry  *corpusEntry
	g      *graph.Graph
	logger logutil.Logger
}

/*
Run writes the graph back to its location.
*/
func (t *persistTask) Run(tid uint64) error {
	t.entry.Lock()
	defer t.entry.Unlock()
	return t.g.Persist()
}

/*
HandleError logs a failed background write.
*/
func (t *persistTask) HandleError(e error) {
	t.logger.Error(fmt.Sprintf("Background write failed: %v", e))
}

/*
closeTask closes an evicted graph in the background.
*/
type closeTask struct {
	g      *graph.Graph
	logger logutil.Logger
}

/*
Run closes the graph.
*/
func (t *closeTask) Run(tid uint64) error {
	return t.g.Close()
}

/*
HandleError logs a failed close.
*/
func (t *closeTask) HandleError(e error) {
	t.logger.Error(fmt.Sprintf("Closing evicted corpus failed: %v", e))
}

// Queries
// =======

/*
prepareQuery parses a query and builds its execution plan against a loaded
corpus graph.
*/
func (s *Storage) prepareQuery(g *graph.Graph, name string,
	query string) (interpreter.ExecNode, error) {

	d, err := aql.ParseQuery(name, query, s.opts.Quirks)
	if err != nil {
		return nil, err
	}

	return d.MakeExecPlan(g, &interpreter.Config{
		Timeout:            s.opts.QueryTimeout,
		OptimizationRounds: s.opts.OptimizationRounds,
		RandomSeed:         s.opts.RandomSeed,
	})
}

/*
Count returns the number of matches of a query.
*/
func (s *Storage) Count(name string, query string) (int, error) {
	res, err := s.CountExtra(name, query)
	if err != nil {
		return 0, err
	}
	return res.MatchCount, nil
}

/*
CountExtra returns the number of matches of a query and the number of
distinct documents containing the first match node.
*/
func (s *Storage) CountExtra(name string, query string) (CountExtra, error) {
	var res CountExtra

	entry := s.entry(name)
	if entry == nil {
		return res, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return res, err
	}

	plan, err := s.prepareQuery(g, name, query)
	if err != nil {
		return res, err
	}

	docs := make(map[string]bool)

	for {
		tuple, err := plan.Next()
		if err != nil {
			return CountExtra{}, err
		}
		if tuple == nil {
			break
		}

		res.MatchCount++

		if len(tuple) > 0 {
			if nodeName, ok := g.NodeNameFromID(tuple[0].Node); ok {
				docs[documentPath(nodeName)] = true
			}
		}
	}

	res.DocumentCount = len(docs)
	return res, nil
}

/*
Find returns the rendered match IDs of a query. A negative limit returns
all matches from the offset on. Concatenating consecutive pages yields the
same sequence as a single unpaginated call.
*/
func (s *Storage) Find(name string, query string, offset int, limit int,
	order Order) ([]string, error) {

	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	plan, err := s.prepareQuery(g, name, query)
	if err != nil {
		return nil, err
	}

	groups, err := s.orderedMatches(g, plan, order)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if offset > len(groups) {
		offset = len(groups)
	}

	end := len(groups)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}

	res := make([]string, 0, end-offset)
	for _, group := range groups[offset:end] {
		res = append(res, renderMatchGroup(g, group))
	}

	return res, nil
}

/*
renderMatchGroup renders one result tuple as space separated match IDs.
Placeholder matches of optional nodes are left out.
*/
func renderMatchGroup(g *graph.Graph, group data.MatchGroup) string {
	var parts []string

	for _, m := range group {
		if m.Key == data.DefaultKey {
			continue
		}

		nodeName, ok := g.NodeNameFromID(m.Node)
		if !ok {
			continue
		}

		if m.Key.NS == data.AnnisNamespace {
			parts = append(parts, nodeName)
		} else {
			parts = append(parts, fmt.Sprintf("%s::%s::%s",
				m.Key.NS, m.Key.Name, nodeName))
		}
	}

	return strings.Join(parts, " ")
}

/*
documentPath returns the document part of a node name (everything before
the last fragment separator).
*/
func documentPath(nodeName string) string {
	path, _ := data.SplitNodeName(nodeName)
	return path
}

// Introspection
// =============

/*
ListNodeAnnotations returns all node annotation keys of a corpus.
*/
func (s *Storage) ListNodeAnnotations(name string) ([]data.AnnoKey, error) {
	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	return g.NodeAnnotations().AnnotationKeys(), nil
}

/*
ListEdgeAnnotations returns all edge annotation keys of one component.
*/
func (s *Storage) ListEdgeAnnotations(name string, c data.Component) ([]data.AnnoKey, error) {
	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	st, err := g.Storage(c)
	if err != nil {
		return nil, err
	}

	return st.AnnotationStorage().AnnotationKeys(), nil
}

/*
AllComponentsByType returns all components of a corpus with a given type.
*/
func (s *Storage) AllComponentsByType(name string,
	ctype data.ComponentType) ([]data.Component, error) {

	entry := s.entry(name)
	if entry == nil {
		return nil, NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return nil, err
	}

	return g.AllComponents(&ctype, nil), nil
}

// Directory name encoding
// =======================

/*
dirNameEscapes are the characters which are percent encoded in corpus
directory names. The set covers the path separator, the escape character
itself and the characters which are invalid in Windows file names.
*/
const dirNameEscapes = `/%<>:"|?*\`

/*
encodeDirName encodes a corpus name for use as a directory name.
*/
func encodeDirName(name string) string {
	var b strings.Builder

	for i := 0; i < len(name); i++ {
		c := name[i]
		if strings.IndexByte(dirNameEscapes, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
		} else {
			b.WriteByte(c)
		}
	}

	return b.String()
}

/*
decodeDirName decodes a directory name back into a corpus name. Invalid
escapes are kept verbatim.
*/
func decodeDirName(dir string) string {
	var b strings.Builder

	for i := 0; i < len(dir); i++ {
		c := dir[i]

		if c == '%' && i+2 < len(dir) {
			var val byte
			if _, err := fmt.Sscanf(dir[i+1:i+3], "%02X", &val); err == nil {
				b.WriteByte(val)
				i += 2
				continue
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}
