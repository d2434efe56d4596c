/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package interpreter

import (
	"errors"
	"fmt"
)

/*
Error models a query related error. Low-level errors should be wrapped in an
Error before they are returned to a client.
*/
type Error struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
}

/*
Error returns a human-readable string representation of this error.
*/
func (qe *Error) Error() string {
	if qe.Detail != "" {
		return fmt.Sprintf("QueryError: %v (%v)", qe.Type, qe.Detail)
	}

	return fmt.Sprintf("QueryError: %v", qe.Type)
}

/*
NewError creates a new Error with a given type and detail text.
*/
func NewError(qtype error, detail string) error {
	return &Error{qtype, detail}
}

/*
IsError checks if a given error is an Error of a given type.
*/
func IsError(err error, qtype error) bool {
	if qe, ok := err.(*Error); ok {
		return qe.Type == qtype
	}
	return false
}

/*
Query related error types
*/
var (
	ErrParsing          = errors.New("Could not parse query")
	ErrTimeout          = errors.New("Query timeout reached")
	ErrImpossibleSearch = errors.New("Impossible search expression")
	ErrMemoryLimit      = errors.New("Memory limit reached")
)
