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
Package util contains common datastructures for the graph layer.

GraphError

Models a graph related error. Low-level errors should be wrapped in a GraphError
before they are returned to a client.
*/
package util

import (
	"errors"
	"fmt"
)

/*
GraphError is a graph related error
*/
type GraphError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
}

/*
Error returns a human-readable string representation of this error.
*/
func (ge *GraphError) Error() string {
	if ge.Detail != "" {
		return fmt.Sprintf("GraphError: %v (%v)", ge.Type, ge.Detail)
	}

	return fmt.Sprintf("GraphError: %v", ge.Type)
}

/*
NewGraphError creates a new GraphError with a given type and detail text.
*/
func NewGraphError(gtype error, detail string) error {
	return &GraphError{gtype, detail}
}

/*
IsGraphError checks if a given error is a GraphError of a given type.
*/
func IsGraphError(err error, gtype error) bool {
	if ge, ok := err.(*GraphError); ok {
		return ge.Type == gtype
	}
	return false
}

/*
Graph storage related error types
*/
var (
	ErrOpening   = errors.New("Failed to open graph storage")
	ErrFlushing  = errors.New("Failed to flush changes")
	ErrClosing   = errors.New("Failed to close graph storage")
	ErrStorageIO = errors.New("Failed to access storage")
	ErrCorrupted = errors.New("Corrupted data on disk")
)

/*
Graph related error types
*/
var (
	ErrInvalidUpdate    = errors.New("Invalid update event")
	ErrMissingComponent = errors.New("Component not part of the graph")
	ErrReading          = errors.New("Could not read graph information")
	ErrWriting          = errors.New("Could not write graph information")
)
