package sandbox

import (
	"fmt"
	"strconv"
)

// maxParseDepth bounds expression/suite nesting so pathological input cannot
// exhaust the host stack during recursive descent.
const maxParseDepth = 500

// parser is a recursive-descent parser over the eagerly-lexed token stream.
// It tracks function and loop nesting so return/break/continue placement is
// rejected at parse time, before anything runs.
type parser struct {
	toks      []token
	i         int
	depth     int
	funcDepth int
	loopDepth int
}

// parse turns source text into a program or a positioned syntax error.
func parse(source string) (*program, *scriptError) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &program{}
	for !p.at(tokEOF) {
		if p.match(tokNewline) {
			continue
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmts...)
	}
	return prog, nil
}

// ---- statements ----

// statement parses one logical line (which may hold several ';'-separated
// simple statements) or one compound statement.
func (p *parser) statement() ([]stmt, *scriptError) {
	if err := p.push(); err != nil {
		return nil, err
	}
	defer p.pop()

	switch p.peek().typ {
	case tokIf:
		s, err := p.ifStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case tokWhile:
		s, err := p.whileStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case tokFor:
		s, err := p.forStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	case tokDef:
		s, err := p.defStatement()
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil
	}
	return p.simpleLine()
}

// simpleLine parses simple_stmt (';' simple_stmt)* NEWLINE.
func (p *parser) simpleLine() ([]stmt, *scriptError) {
	var out []stmt
	for {
		s, err := p.simpleStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if p.match(tokSemi) {
			if p.at(tokNewline) || p.at(tokEOF) {
				break // trailing semicolon
			}
			continue
		}
		break
	}
	if !p.match(tokNewline) && !p.at(tokEOF) && !p.at(tokDedent) {
		t := p.peek()
		return nil, syntaxErr(t.pos(), fmt.Sprintf("unexpected %s", t.typ))
	}
	return out, nil
}

func (p *parser) simpleStatement() (stmt, *scriptError) {
	t := p.peek()
	switch t.typ {
	case tokPass:
		p.next()
		return &passStmt{P: t.pos()}, nil
	case tokBreak:
		p.next()
		if p.loopDepth == 0 {
			return nil, syntaxErr(t.pos(), "'break' outside loop")
		}
		return &breakStmt{P: t.pos()}, nil
	case tokContinue:
		p.next()
		if p.loopDepth == 0 {
			return nil, syntaxErr(t.pos(), "'continue' outside loop")
		}
		return &continueStmt{P: t.pos()}, nil
	case tokReturn:
		p.next()
		if p.funcDepth == 0 {
			return nil, syntaxErr(t.pos(), "'return' outside function")
		}
		ret := &returnStmt{P: t.pos()}
		if !p.at(tokNewline) && !p.at(tokSemi) && !p.at(tokEOF) && !p.at(tokDedent) {
			v, err := p.exprList()
			if err != nil {
				return nil, err
			}
			ret.Value = v
		}
		return ret, nil
	case tokImport:
		return p.importStatement()
	case tokFrom:
		return p.fromImportStatement()
	}
	return p.exprOrAssign()
}

func (p *parser) importStatement() (stmt, *scriptError) {
	t := p.next() // import
	name, err := p.dottedName()
	if err != nil {
		return nil, err
	}
	s := &importStmt{P: t.pos(), Module: name}
	if p.match(tokAs) {
		alias, err := p.expect(tokIdent, "module alias")
		if err != nil {
			return nil, err
		}
		s.Alias = alias.lexeme
	}
	return s, nil
}

func (p *parser) fromImportStatement() (stmt, *scriptError) {
	t := p.next() // from
	name, err := p.dottedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokImport, "'import'"); err != nil {
		return nil, err
	}
	if p.at(tokStar) {
		return nil, syntaxErr(p.peek().pos(), "wildcard imports are not supported")
	}
	s := &fromImportStmt{P: t.pos(), Module: name}
	for {
		ident, err := p.expect(tokIdent, "imported name")
		if err != nil {
			return nil, err
		}
		in := importName{Name: ident.lexeme}
		if p.match(tokAs) {
			alias, err := p.expect(tokIdent, "import alias")
			if err != nil {
				return nil, err
			}
			in.Alias = alias.lexeme
		}
		s.Names = append(s.Names, in)
		if !p.match(tokComma) {
			break
		}
	}
	return s, nil
}

func (p *parser) dottedName() (string, *scriptError) {
	t, err := p.expect(tokIdent, "module name")
	if err != nil {
		return "", err
	}
	name := t.lexeme
	for p.match(tokDot) {
		part, err := p.expect(tokIdent, "module name")
		if err != nil {
			return "", err
		}
		name += "." + part.lexeme
	}
	return name, nil
}

// exprOrAssign disambiguates expression statements, assignments (including
// tuple unpacking), and augmented assignments.
func (p *parser) exprOrAssign() (stmt, *scriptError) {
	start := p.peek().pos()
	lhs, err := p.exprList()
	if err != nil {
		return nil, err
	}

	if op, ok := augOps[p.peek().typ]; ok {
		opTok := p.next()
		if err := checkAssignable(lhs); err != nil {
			return nil, err
		}
		if _, isTuple := lhs.(*tupleLit); isTuple {
			return nil, syntaxErr(opTok.pos(), "augmented assignment cannot have multiple targets")
		}
		rhs, err := p.exprList()
		if err != nil {
			return nil, err
		}
		return &augAssignStmt{P: start, Target: lhs, Op: op, Value: rhs}, nil
	}

	if p.at(tokAssign) {
		eq := p.next()
		if err := checkAssignable(lhs); err != nil {
			return nil, err
		}
		rhs, err := p.exprList()
		if err != nil {
			return nil, err
		}
		if p.at(tokAssign) {
			return nil, syntaxErr(eq.pos(), "chained assignment is not supported")
		}
		targets := []expr{lhs}
		if tup, ok := lhs.(*tupleLit); ok {
			targets = tup.Elems
		}
		return &assignStmt{P: start, Targets: targets, Value: rhs}, nil
	}

	return &exprStmt{P: start, X: lhs}, nil
}

var augOps = map[tokenType]opKind{
	tokPlusEq:     opAdd,
	tokMinusEq:    opSub,
	tokStarEq:     opMul,
	tokSlashEq:    opDiv,
	tokFloorDivEq: opFloorDiv,
	tokPercentEq:  opMod,
}

func checkAssignable(e expr) *scriptError {
	check := func(t expr) *scriptError {
		switch t.(type) {
		case *nameExpr, *indexExpr, *attrExpr:
			return nil
		default:
			return syntaxErr(t.Pos(), fmt.Sprintf("cannot assign to %s", exprDesc(t)))
		}
	}
	if tup, ok := e.(*tupleLit); ok {
		for _, el := range tup.Elems {
			if err := check(el); err != nil {
				return err
			}
		}
		return nil
	}
	return check(e)
}

func exprDesc(e expr) string {
	switch e.(type) {
	case *intLit, *floatLit, *strLit, *boolLit, *noneLit:
		return "literal"
	case *callExpr:
		return "function call"
	case *binaryExpr, *unaryExpr:
		return "expression"
	case *listLit:
		return "list display"
	case *dictLit:
		return "dict display"
	default:
		return "expression"
	}
}

// ---- compound statements ----

func (p *parser) ifStatement() (stmt, *scriptError) {
	t := p.next() // if / elif
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.suite()
	if err != nil {
		return nil, err
	}
	s := &ifStmt{P: t.pos(), Cond: cond, Body: body}

	switch p.peek().typ {
	case tokElif:
		nested, err := p.ifStatement()
		if err != nil {
			return nil, err
		}
		s.Else = []stmt{nested}
	case tokElse:
		p.next()
		elseBody, err := p.suite()
		if err != nil {
			return nil, err
		}
		s.Else = elseBody
	}
	return s, nil
}

func (p *parser) whileStatement() (stmt, *scriptError) {
	t := p.next()
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.suite()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	return &whileStmt{P: t.pos(), Cond: cond, Body: body}, nil
}

func (p *parser) forStatement() (stmt, *scriptError) {
	t := p.next()
	var vars []string
	for {
		ident, err := p.expect(tokIdent, "loop variable")
		if err != nil {
			return nil, err
		}
		vars = append(vars, ident.lexeme)
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokIn, "'in'"); err != nil {
		return nil, err
	}
	iter, err := p.exprList()
	if err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.suite()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	return &forStmt{P: t.pos(), Vars: vars, Iter: iter, Body: body}, nil
}

func (p *parser) defStatement() (stmt, *scriptError) {
	t := p.next()
	name, err := p.expect(tokIdent, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}

	var params []param
	seen := map[string]bool{}
	sawDefault := false
	for !p.at(tokRParen) {
		ident, err := p.expect(tokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if seen[ident.lexeme] {
			return nil, syntaxErr(ident.pos(),
				fmt.Sprintf("duplicate argument '%s' in function definition", ident.lexeme))
		}
		seen[ident.lexeme] = true

		pr := param{Name: ident.lexeme}
		if p.match(tokAssign) {
			def, err := p.expression()
			if err != nil {
				return nil, err
			}
			pr.Default = def
			sawDefault = true
		} else if sawDefault {
			return nil, syntaxErr(ident.pos(), "non-default argument follows default argument")
		}
		params = append(params, pr)
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	p.funcDepth++
	savedLoop := p.loopDepth
	p.loopDepth = 0
	body, serr := p.suite()
	p.loopDepth = savedLoop
	p.funcDepth--
	if serr != nil {
		return nil, serr
	}
	return &defStmt{P: t.pos(), Name: name.lexeme, Params: params, Body: body}, nil
}

// suite parses the body of a compound statement: either an inline
// `: stmt; stmt` on the same line, or an indented block.
func (p *parser) suite() ([]stmt, *scriptError) {
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline) {
		return p.simpleLine()
	}
	p.next() // newline
	if !p.match(tokIndent) {
		t := p.peek()
		return nil, syntaxErr(t.pos(), "expected an indented block")
	}
	var body []stmt
	for !p.at(tokDedent) && !p.at(tokEOF) {
		if p.match(tokNewline) {
			continue
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	p.match(tokDedent)
	if len(body) == 0 {
		return nil, syntaxErr(p.peek().pos(), "expected an indented block")
	}
	return body, nil
}

// ---- expressions ----

// exprList parses test (',' test)* and folds multiple items into a tuple,
// which is how `a, b = b, a` and `return x, y` come out of the grammar.
func (p *parser) exprList() (expr, *scriptError) {
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	if !p.at(tokComma) {
		return first, nil
	}
	elems := []expr{first}
	for p.match(tokComma) {
		if p.startsExpr() {
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			continue
		}
		break // trailing comma
	}
	return &tupleLit{P: first.Pos(), Elems: elems}, nil
}

func (p *parser) expression() (expr, *scriptError) {
	if err := p.push(); err != nil {
		return nil, err
	}
	defer p.pop()
	return p.orExpr()
}

func (p *parser) orExpr() (expr, *scriptError) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		t := p.next()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{P: t.pos(), Op: opOr, L: left, R: right}
	}
	return left, nil
}

func (p *parser) andExpr() (expr, *scriptError) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		t := p.next()
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{P: t.pos(), Op: opAnd, L: left, R: right}
	}
	return left, nil
}

func (p *parser) notExpr() (expr, *scriptError) {
	if p.at(tokNot) {
		t := p.next()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{P: t.pos(), Neg: true, X: x}, nil
	}
	return p.comparison()
}

var compOps = map[tokenType]opKind{
	tokEq: opEq, tokNe: opNe, tokLt: opLt, tokLe: opLe, tokGt: opGt, tokGe: opGe,
}

func (p *parser) comparison() (expr, *scriptError) {
	left, err := p.arith()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if op, ok := compOps[t.typ]; ok {
		p.next()
		right, err := p.arith()
		if err != nil {
			return nil, err
		}
		if _, chained := compOps[p.peek().typ]; chained {
			return nil, syntaxErr(p.peek().pos(), "chained comparisons are not supported")
		}
		return &binaryExpr{P: t.pos(), Op: op, L: left, R: right}, nil
	}
	if t.typ == tokIn {
		p.next()
		right, err := p.arith()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{P: t.pos(), Op: opIn, L: left, R: right}, nil
	}
	if t.typ == tokNot && p.peekAt(1).typ == tokIn {
		p.next()
		p.next()
		right, err := p.arith()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{P: t.pos(), Op: opNotIn, L: left, R: right}, nil
	}
	return left, nil
}

func (p *parser) arith() (expr, *scriptError) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		t := p.next()
		op := opAdd
		if t.typ == tokMinus {
			op = opSub
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{P: t.pos(), Op: op, L: left, R: right}
	}
	return left, nil
}

var termOps = map[tokenType]opKind{
	tokStar: opMul, tokSlash: opDiv, tokFloorDiv: opFloorDiv, tokPercent: opMod,
}

func (p *parser) term() (expr, *scriptError) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := termOps[p.peek().typ]
		if !ok {
			break
		}
		t := p.next()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{P: t.pos(), Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) factor() (expr, *scriptError) {
	if p.at(tokMinus) || p.at(tokPlus) {
		t := p.next()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		op := opAdd
		if t.typ == tokMinus {
			op = opSub
		}
		return &unaryExpr{P: t.pos(), Op: op, X: x}, nil
	}
	return p.power()
}

func (p *parser) power() (expr, *scriptError) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.at(tokPower) {
		t := p.next()
		exp, err := p.factor() // right-associative, binds unary minus in the exponent
		if err != nil {
			return nil, err
		}
		return &binaryExpr{P: t.pos(), Op: opPow, L: base, R: exp}, nil
	}
	return base, nil
}

func (p *parser) postfix() (expr, *scriptError) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokLParen:
			x, err = p.call(x)
		case tokLBracket:
			x, err = p.subscript(x)
		case tokDot:
			t := p.next()
			name, aerr := p.expect(tokIdent, "attribute name")
			if aerr != nil {
				return nil, aerr
			}
			x = &attrExpr{P: t.pos(), X: x, Name: name.lexeme}
		default:
			return x, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) call(fn expr) (expr, *scriptError) {
	t := p.next() // (
	c := &callExpr{P: t.pos(), Fn: fn}
	for !p.at(tokRParen) {
		if p.at(tokIdent) && p.peekAt(1).typ == tokAssign {
			name := p.next()
			p.next() // =
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			c.Kwargs = append(c.Kwargs, kwarg{Name: name.lexeme, Value: v})
		} else {
			if len(c.Kwargs) > 0 {
				return nil, syntaxErr(p.peek().pos(), "positional argument follows keyword argument")
			}
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, v)
		}
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *parser) subscript(x expr) (expr, *scriptError) {
	t := p.next() // [
	var lo, hi expr
	var err *scriptError
	isSlice := false

	if !p.at(tokColon) {
		lo, err = p.expression()
		if err != nil {
			return nil, err
		}
	}
	if p.match(tokColon) {
		isSlice = true
		if !p.at(tokRBracket) {
			hi, err = p.expression()
			if err != nil {
				return nil, err
			}
		}
	}
	if p.at(tokColon) {
		return nil, syntaxErr(p.peek().pos(), "slice steps are not supported")
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}

	if isSlice {
		return &sliceExpr{P: t.pos(), X: x, Lo: lo, Hi: hi}, nil
	}
	if lo == nil {
		return nil, syntaxErr(t.pos(), "empty subscript")
	}
	return &indexExpr{P: t.pos(), X: x, Index: lo}, nil
}

func (p *parser) atom() (expr, *scriptError) {
	t := p.peek()
	switch t.typ {
	case tokIdent:
		p.next()
		return &nameExpr{P: t.pos(), Ident: t.lexeme}, nil
	case tokInt:
		p.next()
		n, err := strconv.ParseInt(t.lexeme, 10, 64)
		if err != nil {
			return nil, syntaxErr(t.pos(), "integer literal too large")
		}
		return &intLit{P: t.pos(), Value: n}, nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.lexeme, 64)
		if err != nil {
			return nil, syntaxErr(t.pos(), "invalid float literal")
		}
		return &floatLit{P: t.pos(), Value: f}, nil
	case tokString:
		p.next()
		s := t.lexeme
		for p.at(tokString) { // adjacent literals concatenate
			s += p.next().lexeme
		}
		return &strLit{P: t.pos(), Value: s}, nil
	case tokTrue:
		p.next()
		return &boolLit{P: t.pos(), Value: true}, nil
	case tokFalse:
		p.next()
		return &boolLit{P: t.pos(), Value: false}, nil
	case tokNone:
		p.next()
		return &noneLit{P: t.pos()}, nil
	case tokLParen:
		return p.parenAtom()
	case tokLBracket:
		return p.listAtom()
	case tokLBrace:
		return p.dictAtom()
	case tokDef:
		return nil, syntaxErr(t.pos(), "function definitions are not expressions")
	default:
		return nil, syntaxErr(t.pos(), fmt.Sprintf("unexpected %s", t.typ))
	}
}

// parenAtom handles grouped expressions, the empty tuple, and parenthesized
// tuples: (), (x), (x,), (x, y).
func (p *parser) parenAtom() (expr, *scriptError) {
	t := p.next() // (
	if p.match(tokRParen) {
		return &tupleLit{P: t.pos()}, nil
	}
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	if !p.at(tokComma) {
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return first, nil
	}
	elems := []expr{first}
	for p.match(tokComma) {
		if p.at(tokRParen) {
			break
		}
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &tupleLit{P: t.pos(), Elems: elems}, nil
}

func (p *parser) listAtom() (expr, *scriptError) {
	t := p.next() // [
	l := &listLit{P: t.pos()}
	for !p.at(tokRBracket) {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if p.at(tokFor) {
			return nil, syntaxErr(p.peek().pos(), "comprehensions are not supported")
		}
		l.Elems = append(l.Elems, e)
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}
	return l, nil
}

func (p *parser) dictAtom() (expr, *scriptError) {
	t := p.next() // {
	d := &dictLit{P: t.pos()}
	for !p.at(tokRBrace) {
		k, err := p.expression()
		if err != nil {
			return nil, err
		}
		if !p.at(tokColon) {
			return nil, syntaxErr(p.peek().pos(), "set literals are not supported")
		}
		p.next()
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		d.Keys = append(d.Keys, k)
		d.Values = append(d.Values, v)
		if !p.match(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return d, nil
}

// ---- token plumbing ----

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) at(typ tokenType) bool { return p.peek().typ == typ }

func (p *parser) match(typ tokenType) bool {
	if p.at(typ) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(typ tokenType, what string) (token, *scriptError) {
	if p.at(typ) {
		return p.next(), nil
	}
	t := p.peek()
	return token{}, syntaxErr(t.pos(), fmt.Sprintf("expected %s, found %s", what, t.typ))
}

// startsExpr reports whether the current token can begin an expression;
// used to detect trailing commas in expression lists.
func (p *parser) startsExpr() bool {
	switch p.peek().typ {
	case tokIdent, tokInt, tokFloat, tokString, tokTrue, tokFalse, tokNone,
		tokLParen, tokLBracket, tokLBrace, tokMinus, tokPlus, tokNot:
		return true
	}
	return false
}

func (p *parser) push() *scriptError {
	p.depth++
	if p.depth > maxParseDepth {
		return syntaxErr(p.peek().pos(), "nesting too deep")
	}
	return nil
}

func (p *parser) pop() { p.depth-- }
