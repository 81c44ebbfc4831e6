package sandbox

import "fmt"

// tokenType enumerates every lexical element of the script language.
type tokenType int

const (
	tokEOF tokenType = iota
	tokNewline
	tokIndent
	tokDedent

	tokIdent
	tokInt
	tokFloat
	tokString

	// Keywords.
	tokAnd
	tokOr
	tokNot
	tokIf
	tokElif
	tokElse
	tokWhile
	tokFor
	tokIn
	tokDef
	tokReturn
	tokImport
	tokFrom
	tokAs
	tokPass
	tokBreak
	tokContinue
	tokTrue
	tokFalse
	tokNone

	// Operators and delimiters.
	tokPlus       // +
	tokMinus      // -
	tokStar       // *
	tokSlash      // /
	tokFloorDiv   // //
	tokPercent    // %
	tokPower      // **
	tokAssign     // =
	tokPlusEq     // +=
	tokMinusEq    // -=
	tokStarEq     // *=
	tokSlashEq    // /=
	tokFloorDivEq // //=
	tokPercentEq  // %=
	tokEq         // ==
	tokNe         // !=
	tokLt         // <
	tokLe         // <=
	tokGt         // >
	tokGe         // >=
	tokLParen     // (
	tokRParen     // )
	tokLBracket   // [
	tokRBracket   // ]
	tokLBrace     // {
	tokRBrace     // }
	tokComma      // ,
	tokColon      // :
	tokDot        // .
	tokSemi       // ;
)

var keywords = map[string]tokenType{
	"and":      tokAnd,
	"or":       tokOr,
	"not":      tokNot,
	"if":       tokIf,
	"elif":     tokElif,
	"else":     tokElse,
	"while":    tokWhile,
	"for":      tokFor,
	"in":       tokIn,
	"def":      tokDef,
	"return":   tokReturn,
	"import":   tokImport,
	"from":     tokFrom,
	"as":       tokAs,
	"pass":     tokPass,
	"break":    tokBreak,
	"continue": tokContinue,
	"True":     tokTrue,
	"False":    tokFalse,
	"None":     tokNone,
}

var tokenNames = map[tokenType]string{
	tokEOF:        "end of input",
	tokNewline:    "newline",
	tokIndent:     "indent",
	tokDedent:     "dedent",
	tokIdent:      "identifier",
	tokInt:        "integer literal",
	tokFloat:      "float literal",
	tokString:     "string literal",
	tokAnd:        "'and'",
	tokOr:         "'or'",
	tokNot:        "'not'",
	tokIf:         "'if'",
	tokElif:       "'elif'",
	tokElse:       "'else'",
	tokWhile:      "'while'",
	tokFor:        "'for'",
	tokIn:         "'in'",
	tokDef:        "'def'",
	tokReturn:     "'return'",
	tokImport:     "'import'",
	tokFrom:       "'from'",
	tokAs:         "'as'",
	tokPass:       "'pass'",
	tokBreak:      "'break'",
	tokContinue:   "'continue'",
	tokTrue:       "'True'",
	tokFalse:      "'False'",
	tokNone:       "'None'",
	tokPlus:       "'+'",
	tokMinus:      "'-'",
	tokStar:       "'*'",
	tokSlash:      "'/'",
	tokFloorDiv:   "'//'",
	tokPercent:    "'%'",
	tokPower:      "'**'",
	tokAssign:     "'='",
	tokPlusEq:     "'+='",
	tokMinusEq:    "'-='",
	tokStarEq:     "'*='",
	tokSlashEq:    "'/='",
	tokFloorDivEq: "'//='",
	tokPercentEq:  "'%='",
	tokEq:         "'=='",
	tokNe:         "'!='",
	tokLt:         "'<'",
	tokLe:         "'<='",
	tokGt:         "'>'",
	tokGe:         "'>='",
	tokLParen:     "'('",
	tokRParen:     "')'",
	tokLBracket:   "'['",
	tokRBracket:   "']'",
	tokLBrace:     "'{'",
	tokRBrace:     "'}'",
	tokComma:      "','",
	tokColon:      "':'",
	tokDot:        "'.'",
	tokSemi:       "';'",
}

func (t tokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// token is one lexical element with its 1-based source position.
type token struct {
	typ    tokenType
	lexeme string
	line   int
	col    int
}

// pos is a 1-based source location carried on every AST node so that both
// static diagnostics and runtime failures can point at the offending source.
type pos struct {
	Line int
	Col  int
}

func (t token) pos() pos { return pos{Line: t.line, Col: t.col} }
