// Package lexer turns mica source text into a stream of tokens.
package lexer

import (
	"fmt"

	"github.com/mica-lang/mica/internal/token"
)

// Lexer holds no state beyond three cursors into the source buffer, so it is
// trivially restartable on a new buffer via Reset.
type Lexer struct {
	src     []byte
	start   int
	current int
	line    int
}

// New creates a Lexer over src. src is not copied; callers must not mutate
// it while the Lexer is in use.
func New(src []byte) *Lexer {
	l := &Lexer{}
	l.Reset(src)
	return l
}

// Reset restarts the Lexer from the beginning of a new source buffer.
func (l *Lexer) Reset(src []byte) {
	l.src = src
	l.start = 0
	l.current = 0
	l.line = 1
}

func (l *Lexer) atEnd() bool { return l.current >= len(l.src) }

func (l *Lexer) advance() byte {
	ch := l.src[l.current]
	l.current++
	return ch
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.src) {
		return 0
	}
	return l.src[l.current+1]
}

func (l *Lexer) match(expected byte) bool {
	if l.atEnd() || l.src[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) lexeme() string { return string(l.src[l.start:l.current]) }

func (l *Lexer) make(kind token.Kind) token.Token {
	return token.Token{Kind: kind, Lexeme: l.lexeme(), Line: l.line}
}

func (l *Lexer) errorTok(msg string) token.Token {
	return token.Token{Kind: token.Error, Lexeme: msg, Line: l.line}
}

func (l *Lexer) skipIgnored() {
	for {
		switch l.peek() {
		case ' ', '\t', '\r':
			l.advance()
		case '\n':
			l.line++
			l.advance()
		case '/':
			if l.peekNext() == '/' {
				for l.peek() != '\n' && !l.atEnd() {
					l.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlphaNumeric(c byte) bool { return isAlpha(c) || isDigit(c) }

// Next produces the next token in the stream, advancing past it.
func (l *Lexer) Next() token.Token {
	l.skipIgnored()
	l.start = l.current
	if l.atEnd() {
		return l.make(token.EOS)
	}

	ch := l.advance()
	if isDigit(ch) {
		return l.number()
	}
	if isAlpha(ch) {
		return l.identifier()
	}

	switch ch {
	case '(':
		return l.make(token.LParen)
	case ')':
		return l.make(token.RParen)
	case '{':
		return l.make(token.LBrace)
	case '}':
		return l.make(token.RBrace)
	case '[':
		return l.make(token.LBracket)
	case ']':
		return l.make(token.RBracket)
	case ',':
		return l.make(token.Comma)
	case '.':
		return l.make(token.Dot)
	case ';':
		return l.make(token.Semicolon)
	case '+':
		return l.make(token.Plus)
	case '-':
		if l.match('>') {
			return l.make(token.Arrow)
		}
		return l.make(token.Minus)
	case '*':
		return l.make(token.Star)
	case '/':
		return l.make(token.Slash)
	case '%':
		return l.make(token.Percent)
	case '|':
		return l.make(token.Pipe)
	case '=':
		if l.match('=') {
			return l.make(token.Eq)
		}
		if l.match('>') {
			return l.make(token.FatArrow)
		}
		return l.make(token.Assign)
	case '!':
		if l.match('=') {
			return l.make(token.NotEq)
		}
		return l.errorTok("unexpected character '!'")
	case '<':
		if l.match('=') {
			return l.make(token.LtEq)
		}
		return l.make(token.Lt)
	case '>':
		if l.match('=') {
			return l.make(token.GtEq)
		}
		return l.make(token.Gt)
	case '"':
		return l.string()
	default:
		return l.errorTok(fmt.Sprintf("unexpected character %q", ch))
	}
}

func (l *Lexer) number() token.Token {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
		return l.make(token.Float)
	}
	return l.make(token.Integer)
}

func (l *Lexer) identifier() token.Token {
	for isAlphaNumeric(l.peek()) {
		l.advance()
	}
	return l.make(token.LookupIdent(l.lexeme()))
}

// string scans a "..." literal. The returned token's Lexeme includes the
// surrounding quotes; no escape processing is performed.
func (l *Lexer) string() token.Token {
	for l.peek() != '"' && !l.atEnd() {
		if l.peek() == '\n' {
			l.line++
		}
		l.advance()
	}
	if l.atEnd() {
		return l.errorTok("unterminated string")
	}
	l.advance() // closing quote
	return l.make(token.String)
}
