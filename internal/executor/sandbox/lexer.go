package sandbox

import (
	"fmt"
	"strings"
	"unicode"
)

// lexer turns source text into a token stream. It is indentation-aware:
// leading whitespace at the start of each logical line is compared against a
// stack of enclosing indents and emitted as INDENT/DEDENT tokens, the same
// scheme CPython's tokenizer uses. Newlines inside (), [] and {} are
// suppressed so literals and call argument lists can span lines.
type lexer struct {
	src    []rune
	offset int
	line   int
	col    int

	indents    []string // stack of enclosing indent prefixes; [0] is always ""
	parenDepth int
	atLineStart bool

	toks []token
}

func lex(source string) ([]token, *scriptError) {
	l := &lexer{
		src:         []rune(source),
		line:        1,
		col:         1,
		indents:     []string{""},
		atLineStart: true,
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.toks, nil
}

func (l *lexer) run() *scriptError {
	for {
		if l.atLineStart && l.parenDepth == 0 {
			if err := l.handleIndent(); err != nil {
				return err
			}
			if l.eof() {
				break
			}
		}
		if l.eof() {
			break
		}

		c := l.peek()
		switch {
		case c == '\n':
			line, col := l.line, l.col
			l.advance()
			if l.parenDepth == 0 {
				l.emit(tokNewline, "\n", line, col)
				l.atLineStart = true
			}
		case c == '#':
			l.skipComment()
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '\'' || c == '"':
			if err := l.lexString(); err != nil {
				return err
			}
		case unicode.IsDigit(c) || (c == '.' && unicode.IsDigit(l.peekAt(1))):
			if err := l.lexNumber(); err != nil {
				return err
			}
		case c == '_' || unicode.IsLetter(c):
			l.lexIdent()
		default:
			if err := l.lexOperator(); err != nil {
				return err
			}
		}
	}

	// Close any open logical line, then unwind the indent stack.
	if n := len(l.toks); n > 0 && l.toks[n-1].typ != tokNewline {
		l.emit(tokNewline, "", l.line, l.col)
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(tokDedent, "", l.line, l.col)
	}
	l.emit(tokEOF, "", l.line, l.col)
	return nil
}

// handleIndent consumes the leading whitespace of a physical line and emits
// INDENT/DEDENT tokens. Blank and comment-only lines produce nothing.
func (l *lexer) handleIndent() *scriptError {
	start := l.offset
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
		l.advance()
	}
	indent := string(l.src[start:l.offset])

	// A line holding nothing (or only a comment) does not affect indentation.
	if l.eof() {
		return nil
	}
	switch l.peek() {
	case '\n':
		l.advance()
		return nil
	case '\r':
		l.advance()
		return nil
	case '#':
		l.skipComment()
		return nil
	}

	l.atLineStart = false
	top := l.indents[len(l.indents)-1]
	switch {
	case indent == top:
		return nil
	case strings.HasPrefix(indent, top):
		l.indents = append(l.indents, indent)
		l.emit(tokIndent, indent, l.line, 1)
		return nil
	default:
		// Dedent: pop until we find the matching enclosing level.
		for len(l.indents) > 1 {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(tokDedent, "", l.line, 1)
			if l.indents[len(l.indents)-1] == indent {
				return nil
			}
		}
		if indent == "" {
			return nil
		}
		return syntaxErr(pos{Line: l.line, Col: 1},
			"unindent does not match any outer indentation level")
	}
}

func (l *lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *lexer) lexIdent() {
	line, col := l.line, l.col
	start := l.offset
	for !l.eof() {
		c := l.peek()
		if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			l.advance()
			continue
		}
		break
	}
	word := string(l.src[start:l.offset])
	if kw, ok := keywords[word]; ok {
		l.emit(kw, word, line, col)
		return
	}
	l.emit(tokIdent, word, line, col)
}

func (l *lexer) lexNumber() *scriptError {
	line, col := l.line, l.col
	start := l.offset
	isFloat := false

	for !l.eof() && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if !l.eof() && l.peek() == '.' {
		isFloat = true
		l.advance()
		for !l.eof() && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	if !l.eof() && (l.peek() == 'e' || l.peek() == 'E') {
		// Exponent is only valid with at least one digit after the sign.
		save := l.offset
		l.advance()
		if !l.eof() && (l.peek() == '+' || l.peek() == '-') {
			l.advance()
		}
		if !l.eof() && unicode.IsDigit(l.peek()) {
			isFloat = true
			for !l.eof() && unicode.IsDigit(l.peek()) {
				l.advance()
			}
		} else {
			l.offset = save
		}
	}

	lit := string(l.src[start:l.offset])
	if isFloat {
		l.emit(tokFloat, lit, line, col)
	} else {
		l.emit(tokInt, lit, line, col)
	}
	return nil
}

// lexString handles single- and triple-quoted literals with the usual
// backslash escapes. Single-quoted literals may not span lines.
func (l *lexer) lexString() *scriptError {
	line, col := l.line, l.col
	quote := l.peek()
	l.advance()

	triple := false
	if l.peek() == quote && l.peekAt(1) == quote {
		triple = true
		l.advance()
		l.advance()
	}

	var sb strings.Builder
	for {
		if l.eof() {
			return syntaxErr(pos{Line: line, Col: col}, "unterminated string literal")
		}
		c := l.peek()
		if c == '\n' && !triple {
			return syntaxErr(pos{Line: line, Col: col}, "unterminated string literal")
		}
		if c == quote {
			if !triple {
				l.advance()
				break
			}
			if l.peekAt(1) == quote && l.peekAt(2) == quote {
				l.advance()
				l.advance()
				l.advance()
				break
			}
			sb.WriteRune(c)
			l.advance()
			continue
		}
		if c == '\\' {
			l.advance()
			if l.eof() {
				return syntaxErr(pos{Line: line, Col: col}, "unterminated string literal")
			}
			switch esc := l.peek(); esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\':
				sb.WriteRune('\\')
			case '\'':
				sb.WriteRune('\'')
			case '"':
				sb.WriteRune('"')
			case '\n':
				// Escaped newline inside a string joins the lines.
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
			l.advance()
			continue
		}
		sb.WriteRune(c)
		l.advance()
	}

	l.emit(tokString, sb.String(), line, col)
	return nil
}

func (l *lexer) lexOperator() *scriptError {
	line, col := l.line, l.col
	two := l.lookahead(2)
	three := l.lookahead(3)

	type opMatch struct {
		lit string
		typ tokenType
	}
	// Longest match first.
	for _, m := range []opMatch{
		{"//=", tokFloorDivEq},
		{"**", tokPower},
		{"//", tokFloorDiv},
		{"==", tokEq},
		{"!=", tokNe},
		{"<=", tokLe},
		{">=", tokGe},
		{"+=", tokPlusEq},
		{"-=", tokMinusEq},
		{"*=", tokStarEq},
		{"/=", tokSlashEq},
		{"%=", tokPercentEq},
	} {
		probe := two
		if len(m.lit) == 3 {
			probe = three
		}
		if probe == m.lit {
			for range m.lit {
				l.advance()
			}
			l.emit(m.typ, m.lit, line, col)
			return nil
		}
	}

	c := l.peek()
	var typ tokenType
	switch c {
	case '+':
		typ = tokPlus
	case '-':
		typ = tokMinus
	case '*':
		typ = tokStar
	case '/':
		typ = tokSlash
	case '%':
		typ = tokPercent
	case '=':
		typ = tokAssign
	case '<':
		typ = tokLt
	case '>':
		typ = tokGt
	case '(':
		typ = tokLParen
		l.parenDepth++
	case ')':
		typ = tokRParen
		l.parenDepth--
	case '[':
		typ = tokLBracket
		l.parenDepth++
	case ']':
		typ = tokRBracket
		l.parenDepth--
	case '{':
		typ = tokLBrace
		l.parenDepth++
	case '}':
		typ = tokRBrace
		l.parenDepth--
	case ',':
		typ = tokComma
	case ':':
		typ = tokColon
	case '.':
		typ = tokDot
	case ';':
		typ = tokSemi
	default:
		return syntaxErr(pos{Line: line, Col: col},
			fmt.Sprintf("invalid character %q", string(c)))
	}
	l.advance()
	l.emit(typ, string(c), line, col)
	return nil
}

func (l *lexer) emit(typ tokenType, lexeme string, line, col int) {
	l.toks = append(l.toks, token{typ: typ, lexeme: lexeme, line: line, col: col})
}

func (l *lexer) eof() bool { return l.offset >= len(l.src) }

func (l *lexer) peek() rune {
	if l.eof() {
		return 0
	}
	return l.src[l.offset]
}

func (l *lexer) peekAt(n int) rune {
	if l.offset+n >= len(l.src) {
		return 0
	}
	return l.src[l.offset+n]
}

func (l *lexer) lookahead(n int) string {
	if l.offset+n > len(l.src) {
		return ""
	}
	return string(l.src[l.offset : l.offset+n])
}

func (l *lexer) advance() {
	if l.eof() {
		return
	}
	if l.src[l.offset] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.offset++
}
