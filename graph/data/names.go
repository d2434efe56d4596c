/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"fmt"
	"strings"
)

/*
Node names form a path corpus/sub-corpus/.../document#local-id. The segments
of the path must not contain path separators or characters which are invalid
in file names on common platforms. Such characters are percent-encoded.
*/

const upperhex = "0123456789ABCDEF"

/*
shouldEncode decides if a byte of a name segment has to be percent-encoded.
*/
func shouldEncode(b byte) bool {
	if b < 0x20 || b == 0x7f {
		return true
	}
	switch b {
	case '%', '/', '<', '>', ':', '"', '|', '?', '*', '\\':
		return true
	}
	return false
}

/*
EncodeNameSegment percent-encodes all characters of a node name segment
which are not allowed in name paths.
*/
func EncodeNameSegment(segment string) string {
	var res strings.Builder

	for i := 0; i < len(segment); i++ {
		b := segment[i]
		if shouldEncode(b) {
			res.WriteByte('%')
			res.WriteByte(upperhex[b>>4])
			res.WriteByte(upperhex[b&0xf])
		} else {
			res.WriteByte(b)
		}
	}

	return res.String()
}

/*
DecodeNameSegment reverses EncodeNameSegment. Malformed escapes are
returned verbatim.
*/
func DecodeNameSegment(segment string) string {
	var res strings.Builder

	for i := 0; i < len(segment); i++ {
		b := segment[i]
		if b == '%' && i+2 < len(segment) {
			if hi, ok1 := unhex(segment[i+1]); ok1 {
				if lo, ok2 := unhex(segment[i+2]); ok2 {
					res.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		res.WriteByte(b)
	}

	return res.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

/*
JoinNamePath joins percent-encoded path segments into a node name path.
*/
func JoinNamePath(segments ...string) string {
	encoded := make([]string, len(segments))
	for i, s := range segments {
		encoded[i] = EncodeNameSegment(s)
	}
	return strings.Join(encoded, "/")
}

/*
SplitNodeName splits a full node name into its document path and the local
node name. The local part is empty if the name contains no fragment.
*/
func SplitNodeName(fullName string) (string, string) {
	if idx := strings.LastIndex(fullName, "#"); idx >= 0 {
		return fullName[:idx], fullName[idx+1:]
	}
	return fullName, ""
}

/*
FragmentName builds a full node name from a document path and a local name.
*/
func FragmentName(docPath string, local string) string {
	return fmt.Sprintf("%s#%s", docPath, EncodeNameSegment(local))
}
