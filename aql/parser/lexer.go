/*
 * AnnisDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

/*
LexToken represents a token which is returned by the lexer.
*/
type LexToken struct {
	ID    LexTokenID // Token kind
	Pos   int        // Starting position (in bytes)
	Val   string     // Token value
	Lline int        // Line in the input this token appears
	Lpos  int        // Position in the input line this token appears
}

/*
PosString returns the position of this token in the original input as a
string.
*/
func (t LexToken) PosString() string {
	return fmt.Sprintf("Line %v, Pos %v", t.Lline, t.Lpos)
}

/*
String returns a string representation of a token.
*/
func (t LexToken) String() string {

	switch {

	case t.ID == TokenEOF:
		return "EOF"

	case t.ID == TokenError:
		return fmt.Sprintf("Error: %s (%s)", t.Val, t.PosString())

	case t.ID == TokenRef:
		return fmt.Sprintf("#%s", t.Val)

	case t.ID == TokenRegex:
		return fmt.Sprintf("/%s/", t.Val)

	case t.ID > TokenSYMBOLS:

		// Dominance and pointing operators may carry an attached name

		if (t.ID == TokenDominance || t.ID == TokenPointing) && t.Val != "" {
			return fmt.Sprintf("%s%s", symbolString[t.ID], t.Val)
		}
		return symbolString[t.ID]

	case len(t.Val) > 10:

		// Special case for very long values

		return fmt.Sprintf("%.10q...", t.Val)
	}

	return fmt.Sprintf("%q", t.Val)
}

/*
Display strings of the symbol tokens.
*/
var symbolString = map[LexTokenID]string{
	TokenAnd:        "&",
	TokenOr:         "|",
	TokenLparen:     "(",
	TokenRparen:     ")",
	TokenEq:         "=",
	TokenNeq:        "!=",
	TokenColon:      ":",
	TokenComma:      ",",
	TokenStar:       "*",
	TokenQuest:      "?",
	TokenNegate:     "!",
	TokenPrecedence: ".",
	TokenNear:       "^",
	TokenDominance:  ">",
	TokenPointing:   "->",
	TokenPartOf:     "@",
	TokenIdentNode:  "==",
	TokenOverlap:    "_o_",
	TokenInclusion:  "_i_",
	TokenIdentCov:   "_=_",
	TokenLeftAlign:  "_l_",
	TokenRightAlign: "_r_",
}

/*
Alignment operators spelled with underscores. They are checked before the
underscore is treated as an identifier character.
*/
var underscoreSymbols = map[string]LexTokenID{
	"_o_": TokenOverlap,
	"_i_": TokenInclusion,
	"_=_": TokenIdentCov,
	"_l_": TokenLeftAlign,
	"_r_": TokenRightAlign,
}

// Lexer
// =====

/*
RuneEOF is a special rune which represents the end of the input.
*/
const RuneEOF = -1

/*
Function which represents the current state of the lexer and returns the
next state.
*/
type lexFunc func(*lexer) lexFunc

/*
Lexer data structure
*/
type lexer struct {
	name   string        // Name to identify the input
	input  string        // Input string of the lexer
	pos    int           // Current rune pointer
	line   int           // Current line pointer
	lastnl int           // Last newline position
	width  int           // Width of last rune
	start  int           // Start position of the current read token
	tokens chan LexToken // Channel for lexer output
}

/*
Lex lexes a given input. Returns a channel which contains tokens.
*/
func Lex(name string, input string) chan LexToken {
	l := &lexer{name, input, 0, 0, 0, 0, 0, make(chan LexToken)}
	go l.run()
	return l.tokens
}

/*
LexToList lexes a given input. Returns a list of tokens.
*/
func LexToList(name string, input string) []LexToken {
	var tokens []LexToken

	for t := range Lex(name, input) {
		tokens = append(tokens, t)
	}

	return tokens
}

/*
Main loop of the lexer.
*/
func (l *lexer) run() {

	if skipWhiteSpace(l) {
		for state := lexToken; state != nil; {
			state = state(l)

			if !skipWhiteSpace(l) {
				break
			}
		}
	}

	close(l.tokens)
}

/*
next returns the next rune in the input and advances the current rune
pointer if the peek flag is not set.
*/
func (l *lexer) next(peek bool) rune {

	// Check if we reached the end

	if int(l.pos) >= len(l.input) {
		return RuneEOF
	}

	// Decode the next rune

	r, w := utf8.DecodeRuneInString(l.input[l.pos:])

	if !peek {
		l.width = w
		l.pos += l.width
	}

	return r
}

/*
backup sets the pointer one rune back. Can only be called once per next
call.
*/
func (l *lexer) backup() {
	if l.width == -1 {
		panic("Can only backup once per next call")
	}

	l.pos -= l.width
	l.width = -1
}

/*
startNew starts a new token.
*/
func (l *lexer) startNew() {
	l.start = l.pos
}

/*
emitToken passes a token back to the client.
*/
func (l *lexer) emitToken(t LexTokenID) {
	if t == TokenEOF {
		l.emitTokenAndValue(t, "")
		return
	}

	if l.tokens != nil {
		l.tokens <- LexToken{t, l.start, l.input[l.start:l.pos],
			l.line + 1, l.start - l.lastnl + 1}
	}
}

/*
emitTokenAndValue passes a token with a given value back to the client.
*/
func (l *lexer) emitTokenAndValue(t LexTokenID, val string) {
	if l.tokens != nil {
		l.tokens <- LexToken{t, l.start, val, l.line + 1, l.start - l.lastnl + 1}
	}
}

/*
emitError passes an error token back to the client.
*/
func (l *lexer) emitError(msg string) {
	if l.tokens != nil {
		l.tokens <- LexToken{TokenError, l.start, msg, l.line + 1,
			l.start - l.lastnl + 1}
	}
}

// State functions
// ===============

/*
lexToken is the main entry function for the lexer.
*/
func lexToken(l *lexer) lexFunc {
	l.startNew()

	r := l.next(false)

	switch r {

	case '"':
		l.backup()
		return lexValue

	case '/':
		l.backup()
		return lexRegex

	case '#':
		return lexRef

	case '&':
		l.emitToken(TokenAnd)
	case '|':
		l.emitToken(TokenOr)
	case '(':
		l.emitToken(TokenLparen)
	case ')':
		l.emitToken(TokenRparen)
	case ':':
		l.emitToken(TokenColon)
	case ',':
		l.emitToken(TokenComma)
	case '*':
		l.emitToken(TokenStar)
	case '?':
		l.emitToken(TokenQuest)
	case '.':
		l.emitTokenAndValue(TokenPrecedence, "")
	case '^':
		l.emitTokenAndValue(TokenNear, "")
	case '@':
		l.emitTokenAndValue(TokenPartOf, "")

	case '=':
		if l.next(true) == '=' {
			l.next(false)
			l.emitTokenAndValue(TokenIdentNode, "")
		} else {
			l.emitToken(TokenEq)
		}

	case '!':
		if l.next(true) == '=' {
			l.next(false)
			l.emitToken(TokenNeq)
		} else {
			l.emitToken(TokenNegate)
		}

	case '>':

		// A component name may be attached directly to the operator

		l.emitTokenAndValue(TokenDominance, attachedName(l))

	case '-':
		if l.next(true) != '>' {
			l.emitError(fmt.Sprintf("Unexpected character %q", r))
			return nil
		}
		l.next(false)

		name := attachedName(l)
		if name == "" {
			l.emitError("Pointing relation requires a component name")
			return nil
		}
		l.emitTokenAndValue(TokenPointing, name)

	case '_':
		if sym, ok := underscoreSymbols[lookahead(l, 2)]; ok {
			l.next(false)
			l.next(false)
			l.emitTokenAndValue(sym, "")
			return lexToken
		}
		l.backup()
		return lexIdent

	default:
		l.backup()

		if unicode.IsDigit(r) {
			return lexNumber
		}
		if unicode.IsLetter(r) {
			return lexIdent
		}

		l.next(false)
		l.emitError(fmt.Sprintf("Unexpected character %q", r))
		return nil
	}

	return lexToken
}

/*
lookahead returns the string of the current rune plus the given number of
following runes without advancing the pointer.
*/
func lookahead(l *lexer, n int) string {
	end := l.pos
	for i := 0; i < n && end < len(l.input); i++ {
		_, w := utf8.DecodeRuneInString(l.input[end:])
		end += w
	}
	return l.input[l.pos-l.width : end]
}

/*
attachedName reads an identifier directly attached to an operator. Ranges
like >2,4 start with a digit and are not names.
*/
func attachedName(l *lexer) string {
	start := l.pos

	if !unicode.IsLetter(l.next(true)) {
		return ""
	}

	r := l.next(true)
	for unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		l.next(false)
		r = l.next(true)
	}

	return l.input[start:l.pos]
}

/*
lexValue lexes a quoted annotation value. Escape sequences are interpreted.
*/
func lexValue(l *lexer) lexFunc {
	l.startNew()
	l.next(false)

	r := l.next(false)
	rprev := ' '
	lLine := l.line
	lLastnl := l.lastnl

	for r != '"' || rprev == '\\' {
		if r == '\n' {
			lLine++
			lLastnl = l.pos
		}

		rprev = r
		r = l.next(false)

		if r == RuneEOF {
			l.emitError("Unexpected end while reading value")
			return nil
		}
	}

	val := l.input[l.start+1 : l.pos-1]

	// Interpret escape sequences right away

	s, err := strconv.Unquote("\"" + val + "\"")
	if err != nil {
		l.emitError(err.Error() + " while parsing escape sequences")
		return nil
	}

	l.emitTokenAndValue(TokenValue, s)

	l.line = lLine
	l.lastnl = lLastnl

	return lexToken
}

/*
lexRegex lexes a regular expression value between slashes. Only the closing
slash can be escaped, the pattern itself is passed through unchanged.
*/
func lexRegex(l *lexer) lexFunc {
	l.startNew()
	l.next(false)

	r := l.next(false)
	rprev := ' '

	for r != '/' || rprev == '\\' {
		rprev = r
		r = l.next(false)

		if r == RuneEOF || r == '\n' {
			l.emitError("Unexpected end while reading regular expression")
			return nil
		}
	}

	val := l.input[l.start+1 : l.pos-1]
	l.emitTokenAndValue(TokenRegex, strings.Replace(val, "\\/", "/", -1))

	return lexToken
}

/*
lexRef lexes a node reference.
*/
func lexRef(l *lexer) lexFunc {
	l.startNew()

	r := l.next(true)
	for unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		l.next(false)
		r = l.next(true)
	}

	if l.pos == l.start {
		l.emitError("Node reference requires a number or name")
		return nil
	}

	l.emitToken(TokenRef)
	return lexToken
}

/*
lexNumber lexes a number literal.
*/
func lexNumber(l *lexer) lexFunc {
	l.startNew()

	r := l.next(true)
	for unicode.IsDigit(r) {
		l.next(false)
		r = l.next(true)
	}

	l.emitToken(TokenNumber)
	return lexToken
}

/*
lexIdent lexes an identifier such as an annotation or segmentation name.
*/
func lexIdent(l *lexer) lexFunc {
	l.startNew()

	r := l.next(true)
	for unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		l.next(false)
		r = l.next(true)
	}

	l.emitToken(TokenIdent)
	return lexToken
}

// Helper functions
// ================

/*
skipWhiteSpace skips any number of whitespace characters. Returns false if
the lexer reaches EOF while skipping whitespaces.
*/
func skipWhiteSpace(l *lexer) bool {
	r := l.next(false)
	for unicode.IsSpace(r) || unicode.IsControl(r) || r == RuneEOF {
		if r == '\n' {
			l.line++
			l.lastnl = l.pos
		}
		r = l.next(false)

		if r == RuneEOF {
			l.emitToken(TokenEOF)
			return false
		}
	}

	l.backup()
	return true
}
