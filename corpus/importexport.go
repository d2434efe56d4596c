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
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"devt.de/krotik/annisdb/graph"
	"github.com/klauspost/compress/zip"
)

/*
GraphMLSuffix is the file name suffix of GraphML corpus files in an
exchange archive.
*/
const GraphMLSuffix = ".graphml"

/*
ImportCorpusZIP imports all GraphML corpora of a ZIP archive and returns
the names of the imported corpora. Importing a corpus which already exists
fails with ErrCorpusExists.
*/
func (s *Storage) ImportCorpusZIP(zipFile string) ([]string, error) {
	file, err := os.Open(zipFile)
	if err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	archive, err := zip.NewReader(file, info.Size())
	if err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	var imported []string

	for _, entry := range archive.File {
		if !strings.HasSuffix(strings.ToLower(entry.Name), GraphMLSuffix) {
			continue
		}

		corpusName := strings.TrimSuffix(path.Base(entry.Name),
			path.Ext(entry.Name))

		rc, err := entry.Open()
		if err != nil {
			return imported, NewStorageError(ErrLoadingFailed, err.Error())
		}

		err = s.importGraphML(corpusName, rc)
		rc.Close()

		if err != nil {
			return imported, err
		}

		imported = append(imported, corpusName)
	}

	return imported, nil
}

/*
importGraphML imports one corpus from a GraphML stream.
*/
func (s *Storage) importGraphML(name string, r io.Reader) error {
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

	drop := func(err error) error {
		s.mutex.Lock()
		delete(s.corpora, name)
		s.mutex.Unlock()
		return err
	}

	g, err := graph.ImportGraphML(r)
	if err != nil {
		return drop(err)
	}

	currentDir := filepath.Join(s.corpusDir(name), CurrentDirName)

	if err := g.PersistTo(currentDir); err != nil {
		g.Close()
		return drop(err)
	}

	if err := s.updateCorpusSize(name, g); err != nil {
		g.Close()
		return drop(err)
	}

	return g.Close()
}

/*
ExportCorpusZIP writes the given corpora as GraphML files into a ZIP
archive. The export uses a stable element order so equal corpora produce
equal archives.
*/
func (s *Storage) ExportCorpusZIP(names []string, w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, name := range names {
		fw, err := zw.Create(encodeDirName(name) + GraphMLSuffix)
		if err != nil {
			zw.Close()
			return NewStorageError(ErrLoadingFailed, err.Error())
		}

		if err := s.ExportGraphML(name, fw); err != nil {
			zw.Close()
			return err
		}
	}

	return zw.Close()
}

/*
ExportGraphML writes one corpus as GraphML.
*/
func (s *Storage) ExportGraphML(name string, w io.Writer) error {
	entry := s.entry(name)
	if entry == nil {
		return NewStorageError(ErrNoSuchCorpus, name)
	}

	entry.RLock()
	defer entry.RUnlock()

	g, err := s.loadGraph(name)
	if err != nil {
		return err
	}

	if err := g.EnsureLoadedAll(); err != nil {
		return err
	}

	return g.ExportGraphML(w, true)
}
