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
	"errors"
	"fmt"
)

/*
StorageError is a corpus storage related error.
*/
type StorageError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
}

/*
Error returns a human-readable string representation of this error.
*/
func (se *StorageError) Error() string {
	if se.Detail == "" {
		return fmt.Sprintf("StorageError: %v", se.Type)
	}
	return fmt.Sprintf("StorageError: %v (%v)", se.Type, se.Detail)
}

/*
NewStorageError creates a new StorageError.
*/
func NewStorageError(t error, d string) *StorageError {
	return &StorageError{Type: t, Detail: d}
}

/*
IsStorageError checks if a given error is a StorageError of a given type.
*/
func IsStorageError(err error, t error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}

/*
Storage error types.
*/
var (
	ErrNoSuchCorpus  = errors.New("Corpus does not exist")
	ErrCorpusExists  = errors.New("Corpus exists already")
	ErrLoadingFailed = errors.New("Could not load corpus")
	ErrAlreadyLocked = errors.New("Corpus storage is locked by another process")
)
