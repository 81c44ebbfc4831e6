package sandbox

// The syntax tree is a closed set of tagged variants: every statement form
// implements Stmt, every expression form implements Expr, and the interpreter
// switches exhaustively over them. Each node carries the 1-based position of
// the token that introduced it.

type node interface{ Pos() pos }

type stmt interface {
	node
	stmtNode()
}

type expr interface {
	node
	exprNode()
}

// opKind is the operator vocabulary of the language, decoupled from lexical
// token types so "not in" and friends have a single representation.
type opKind int

const (
	opAdd opKind = iota
	opSub
	opMul
	opDiv
	opFloorDiv
	opMod
	opPow
	opEq
	opNe
	opLt
	opLe
	opGt
	opGe
	opIn
	opNotIn
	opAnd
	opOr
)

var opSymbols = map[opKind]string{
	opAdd: "+", opSub: "-", opMul: "*", opDiv: "/", opFloorDiv: "//",
	opMod: "%", opPow: "**", opEq: "==", opNe: "!=", opLt: "<", opLe: "<=",
	opGt: ">", opGe: ">=", opIn: "in", opNotIn: "not in", opAnd: "and",
	opOr: "or",
}

func (op opKind) String() string { return opSymbols[op] }

// ---- statements ----

type exprStmt struct {
	P pos
	X expr
}

// assignStmt covers both single assignment and tuple unpacking:
// len(Targets) > 1 means the value must be a sequence of matching length.
type assignStmt struct {
	P       pos
	Targets []expr // each is *nameExpr, *indexExpr, or *attrExpr
	Value   expr
}

type augAssignStmt struct {
	P      pos
	Target expr
	Op     opKind
	Value  expr
}

type ifStmt struct {
	P    pos
	Cond expr
	Body []stmt
	Else []stmt // nil, another block, or a single nested ifStmt for elif
}

type whileStmt struct {
	P    pos
	Cond expr
	Body []stmt
}

type forStmt struct {
	P     pos
	Vars  []string
	Iter  expr
	Body  []stmt
}

type param struct {
	Name    string
	Default expr // nil when the parameter is required
}

type defStmt struct {
	P      pos
	Name   string
	Params []param
	Body   []stmt
}

type returnStmt struct {
	P     pos
	Value expr // nil for a bare return
}

type importStmt struct {
	P      pos
	Module string
	Alias  string // "" when not aliased
}

type importName struct {
	Name  string
	Alias string
}

type fromImportStmt struct {
	P      pos
	Module string
	Names  []importName
}

type passStmt struct{ P pos }

type breakStmt struct{ P pos }

type continueStmt struct{ P pos }

func (s *exprStmt) Pos() pos       { return s.P }
func (s *assignStmt) Pos() pos     { return s.P }
func (s *augAssignStmt) Pos() pos  { return s.P }
func (s *ifStmt) Pos() pos         { return s.P }
func (s *whileStmt) Pos() pos      { return s.P }
func (s *forStmt) Pos() pos        { return s.P }
func (s *defStmt) Pos() pos        { return s.P }
func (s *returnStmt) Pos() pos     { return s.P }
func (s *importStmt) Pos() pos     { return s.P }
func (s *fromImportStmt) Pos() pos { return s.P }
func (s *passStmt) Pos() pos       { return s.P }
func (s *breakStmt) Pos() pos      { return s.P }
func (s *continueStmt) Pos() pos   { return s.P }

func (*exprStmt) stmtNode()       {}
func (*assignStmt) stmtNode()     {}
func (*augAssignStmt) stmtNode()  {}
func (*ifStmt) stmtNode()         {}
func (*whileStmt) stmtNode()      {}
func (*forStmt) stmtNode()        {}
func (*defStmt) stmtNode()        {}
func (*returnStmt) stmtNode()     {}
func (*importStmt) stmtNode()     {}
func (*fromImportStmt) stmtNode() {}
func (*passStmt) stmtNode()       {}
func (*breakStmt) stmtNode()      {}
func (*continueStmt) stmtNode()   {}

// ---- expressions ----

type nameExpr struct {
	P     pos
	Ident string
}

type intLit struct {
	P     pos
	Value int64
}

type floatLit struct {
	P     pos
	Value float64
}

type strLit struct {
	P     pos
	Value string
}

type boolLit struct {
	P     pos
	Value bool
}

type noneLit struct{ P pos }

type listLit struct {
	P     pos
	Elems []expr
}

type tupleLit struct {
	P     pos
	Elems []expr
}

type dictLit struct {
	P      pos
	Keys   []expr
	Values []expr
}

type unaryExpr struct {
	P  pos
	Op opKind // opSub, opAdd reused for +/-; opNotIn is never unary
	Neg bool  // true for 'not'
	X  expr
}

// binaryExpr covers arithmetic, comparison, membership, and the
// short-circuiting and/or (the interpreter special-cases opAnd/opOr).
type binaryExpr struct {
	P  pos
	Op opKind
	L  expr
	R  expr
}

type kwarg struct {
	Name  string
	Value expr
}

type callExpr struct {
	P      pos
	Fn     expr
	Args   []expr
	Kwargs []kwarg
}

type attrExpr struct {
	P    pos
	X    expr
	Name string
}

type indexExpr struct {
	P     pos
	X     expr
	Index expr
}

type sliceExpr struct {
	P  pos
	X  expr
	Lo expr // nil for open start
	Hi expr // nil for open end
}

func (e *nameExpr) Pos() pos   { return e.P }
func (e *intLit) Pos() pos     { return e.P }
func (e *floatLit) Pos() pos   { return e.P }
func (e *strLit) Pos() pos     { return e.P }
func (e *boolLit) Pos() pos    { return e.P }
func (e *noneLit) Pos() pos    { return e.P }
func (e *listLit) Pos() pos    { return e.P }
func (e *tupleLit) Pos() pos   { return e.P }
func (e *dictLit) Pos() pos    { return e.P }
func (e *unaryExpr) Pos() pos  { return e.P }
func (e *binaryExpr) Pos() pos { return e.P }
func (e *callExpr) Pos() pos   { return e.P }
func (e *attrExpr) Pos() pos   { return e.P }
func (e *indexExpr) Pos() pos  { return e.P }
func (e *sliceExpr) Pos() pos  { return e.P }

func (*nameExpr) exprNode()   {}
func (*intLit) exprNode()     {}
func (*floatLit) exprNode()   {}
func (*strLit) exprNode()     {}
func (*boolLit) exprNode()    {}
func (*noneLit) exprNode()    {}
func (*listLit) exprNode()    {}
func (*tupleLit) exprNode()   {}
func (*dictLit) exprNode()    {}
func (*unaryExpr) exprNode()  {}
func (*binaryExpr) exprNode() {}
func (*callExpr) exprNode()   {}
func (*attrExpr) exprNode()   {}
func (*indexExpr) exprNode()  {}
func (*sliceExpr) exprNode()  {}

// program is the parsed unit: the top-level statement list.
type program struct {
	Stmts []stmt
}
