// Package parse turns rule-file source text into the core.Rule and
// core.Dependency values the execution engine consumes. It also provides
// the restricted dependency-expression parser used for dynamic dependency
// content.
package parse

import (
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/aaronmcdaid/buildcore/core"
)

var log = logging.MustGetLogger("parse")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokColon
	tokSemi
	tokEq
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokVarOpen // "$["
	tokLt
	tokGt
	tokAt
	tokFlag    // "-p", "-o", "-t", "-n", "-0"; Text holds the letter
	tokCommand // raw "{ ... }" body; Text holds the content between braces
)

type token struct {
	kind tokenKind
	text string
	// glued is set when this token directly follows the previous one with
	// no intervening whitespace, which is how concatenation is written.
	glued bool
	place core.Place
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokName:
		return fmt.Sprintf("%q", t.text)
	case tokFlag:
		return "-" + t.text
	case tokCommand:
		return "{...}"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

type lexer struct {
	src  string
	file string
	pos  int
	line int
	col  int
}

func newLexer(src, file string) *lexer {
	return &lexer{src: src, file: file, line: 1, col: 1}
}

func (l *lexer) place() core.Place {
	return core.Place{File: l.file, Line: l.line, Column: l.col}
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// isNameByte reports whether b can appear inside an unquoted name.
func isNameByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ':', ';', '=', '(', ')', '[', ']', '<', '>', '@', '{', '}', '#', 0:
		return false
	}
	return true
}

// lex tokenizes the whole input. Command bodies are captured raw; the
// engine hands them to the shell untouched.
func (l *lexer) lex() ([]token, error) {
	var toks []token
	glued := false
	for l.pos < len(l.src) {
		b := l.peek()
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			l.advance()
			glued = false
			continue
		case b == '#':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			glued = false
			continue
		}

		place := l.place()
		emit := func(kind tokenKind, text string) {
			toks = append(toks, token{kind: kind, text: text, glued: glued, place: place})
			glued = true
		}

		switch b {
		case ':':
			l.advance()
			emit(tokColon, ":")
		case ';':
			l.advance()
			emit(tokSemi, ";")
		case '=':
			l.advance()
			emit(tokEq, "=")
		case '(':
			l.advance()
			emit(tokLParen, "(")
		case ')':
			l.advance()
			emit(tokRParen, ")")
		case '[':
			l.advance()
			emit(tokLBracket, "[")
		case ']':
			l.advance()
			emit(tokRBracket, "]")
		case '<':
			l.advance()
			emit(tokLt, "<")
		case '>':
			l.advance()
			emit(tokGt, ">")
		case '@':
			l.advance()
			emit(tokAt, "@")
		case '{':
			body, err := l.lexCommand()
			if err != nil {
				return nil, err
			}
			emit(tokCommand, body)
		case '}':
			return nil, fmt.Errorf("%s: unexpected '}'", place)
		case '-':
			if f := l.lexFlag(); f != "" {
				emit(tokFlag, f)
				continue
			}
			emit(tokName, l.lexName())
		case '$':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '[' {
				l.advance()
				l.advance()
				emit(tokVarOpen, "$[")
				continue
			}
			emit(tokName, l.lexName())
		default:
			emit(tokName, l.lexName())
		}
	}
	toks = append(toks, token{kind: tokEOF, place: l.place()})
	return toks, nil
}

// lexFlag recognises the dependency flag tokens. A '-' that
// does not introduce one is part of a name (filenames may contain dashes).
func (l *lexer) lexFlag() string {
	if l.pos+1 >= len(l.src) {
		return ""
	}
	c := l.src[l.pos+1]
	switch c {
	case 'p', 'o', 't', 'n', '0':
	default:
		return ""
	}
	if l.pos+2 < len(l.src) && isNameByte(l.src[l.pos+2]) {
		return "" // "-pthread" is a name, not a flag
	}
	l.advance()
	l.advance()
	return string(c)
}

// lexName consumes a run of name bytes. A '$' inside a name introduces a
// parameter and is kept verbatim; '$[' always terminates the name since it
// opens a variable dependency.
func (l *lexer) lexName() string {
	start := l.pos
	for l.pos < len(l.src) {
		b := l.peek()
		if b == '$' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '[' {
				break
			}
			l.advance()
			continue
		}
		if !isNameByte(b) {
			break
		}
		l.advance()
	}
	return l.src[start:l.pos]
}

// lexCommand captures a brace-balanced raw command body, honouring shell
// quoting so an unbalanced brace inside quotes does not end the command.
func (l *lexer) lexCommand() (string, error) {
	open := l.place()
	l.advance() // '{'
	start := l.pos
	depth := 1
	var quote byte
	for l.pos < len(l.src) {
		b := l.advance()
		switch {
		case quote != 0:
			if b == '\\' && quote == '"' && l.pos < len(l.src) {
				l.advance()
			} else if b == quote {
				quote = 0
			}
		case b == '\'' || b == '"':
			quote = b
		case b == '\\' && l.pos < len(l.src):
			l.advance()
		case b == '{':
			depth++
		case b == '}':
			depth--
			if depth == 0 {
				return l.src[start : l.pos-1], nil
			}
		}
	}
	return "", fmt.Errorf("%s: unterminated command", open)
}
