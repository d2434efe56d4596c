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
	"os"
	"path/filepath"

	"devt.de/krotik/common/fileutil"
	"github.com/pelletier/go-toml/v2"
)

/*
ConfigFileName is the name of the per-corpus configuration file.
*/
const ConfigFileName = "corpus-config.toml"

/*
CorpusConfig is the per-corpus configuration which travels with the corpus
directory. It is written on import and updated after every applied batch.
*/
type CorpusConfig struct {
	CorpusSize     *CorpusSize   `toml:"corpus_size,omitempty"`
	View           ViewConfig    `toml:"view,omitempty"`
	Visualizers    []Visualizer  `toml:"visualizers,omitempty"`
	ExampleQueries []ExampleQuery `toml:"example_queries,omitempty"`
}

/*
CorpusSize is the size of the corpus in a counting unit.
*/
type CorpusSize struct {
	Quantity int          `toml:"quantity"`
	Unit     QuantityUnit `toml:"unit"`
}

/*
QuantityUnit is the unit of a corpus size: base tokens or the units of a
named segmentation layer.
*/
type QuantityUnit struct {
	Name  string `toml:"name"`
	Value string `toml:"value,omitempty"`
}

/*
ViewConfig holds display hints for frontends. The virtual tokenization
fields are legacy settings which are preserved verbatim but never acted
upon.
*/
type ViewConfig struct {
	TimelineStrategy                 string   `toml:"timeline_strategy,omitempty"`
	CorpusAnnotationOrder            []string `toml:"corpus_annotation_order,omitempty"`
	VirtualTokenizationMapping       string   `toml:"virtual_tokenization_mapping,omitempty"`
	VirtualTokenizationFromNamespace string   `toml:"virtual_tokenization_from_namespace,omitempty"`
}

/*
Visualizer maps a part of the corpus to a frontend visualizer.
*/
type Visualizer struct {
	Element     string            `toml:"element,omitempty"`
	Layer       string            `toml:"layer,omitempty"`
	VisType     string            `toml:"vis_type"`
	DisplayName string            `toml:"display_name,omitempty"`
	Visibility  string            `toml:"visibility,omitempty"`
	Mappings    map[string]string `toml:"mappings,omitempty"`
}

/*
ExampleQuery is a documented query shipped with the corpus.
*/
type ExampleQuery struct {
	Query       string `toml:"query"`
	Description string `toml:"description,omitempty"`
}

/*
TokenUnit creates the corpus size unit counting base tokens.
*/
func TokenUnit() QuantityUnit {
	return QuantityUnit{Name: "tokens"}
}

/*
SegmentationUnit creates the corpus size unit counting the units of a
segmentation layer.
*/
func SegmentationUnit(layer string) QuantityUnit {
	return QuantityUnit{Name: "segmentation", Value: layer}
}

/*
LoadCorpusConfig reads the configuration file of a corpus directory. The
result is an empty configuration if no file exists.
*/
func LoadCorpusConfig(corpusDir string) (*CorpusConfig, error) {
	configFile := filepath.Join(corpusDir, ConfigFileName)

	if ok, _ := fileutil.PathExists(configFile); !ok {
		return &CorpusConfig{}, nil
	}

	raw, err := os.ReadFile(configFile)
	if err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	var config CorpusConfig

	if err := toml.Unmarshal(raw, &config); err != nil {
		return nil, NewStorageError(ErrLoadingFailed, err.Error())
	}

	return &config, nil
}

/*
Save writes the configuration file of a corpus directory.
*/
func (cc *CorpusConfig) Save(corpusDir string) error {
	raw, err := toml.Marshal(cc)
	if err != nil {
		return NewStorageError(ErrLoadingFailed, err.Error())
	}

	if err := os.WriteFile(filepath.Join(corpusDir, ConfigFileName),
		raw, 0660); err != nil {
		return NewStorageError(ErrLoadingFailed, err.Error())
	}

	return nil
}
