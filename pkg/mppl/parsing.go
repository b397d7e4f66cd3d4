package mppl

import (
	"fmt"
	"strings"

	"fortio.org/sets"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/source"
	"mppl.dev/mpplc/pkg/syntax"
)

// ----------------------------------------------------------------------------
// Parser

// Recursive descent over the token stream, with one function per precedence
// tier for expressions. The parser always produces a well-formed tree whose token
// concatenation equals the source: mismatched input is spliced into error
// nodes instead of being dropped, and absent optional productions leave an
// empty slot so the typed accessors keep their positions.
//
// Recovery works through two pieces of state. The expected set accumulates
// every token an eat() would have accepted since the last successful bump;
// on a hard mismatch its sorted contents become the unexpected-token message.
// The follow stack carries, per enclosing production, the tokens that end it;
// recovery consumes into an error node until one of them (or EOF) comes up.

type Parser struct {
	src     *source.Source
	lexer   *Lexer
	builder *syntax.Builder
	bag     *diag.Bag

	tok    LexedToken
	trivia syntax.RawTrivia

	expected   sets.Set[syntax.Kind]
	follow     []sets.Set[syntax.Kind]
	recovering bool
	whileDepth int
}

// Parse runs the lexer and parser over 'src' and returns the root view of the
// lossless tree. All diagnostics land in 'bag'; the tree itself is always
// complete.
func Parse(src *source.Source, bag *diag.Bag) *syntax.SyntaxTree {
	p := &Parser{
		src:      src,
		lexer:    NewLexer(src, bag),
		builder:  syntax.NewBuilder(),
		bag:      bag,
		expected: sets.New[syntax.Kind](),
	}
	p.advance()
	p.parseProgram()
	return syntax.NewSyntaxTree(p.builder.Finish())
}

// ----------------------------------------------------------------------------
// Token plumbing

// advance pulls the next non-trivia token, folding the trivia run in front of
// it into the token's leading trivia.
func (p *Parser) advance() {
	var text strings.Builder
	var pieces []syntax.TriviaPiece

	for {
		t := p.lexer.Next()
		if t.Kind.IsTrivia() {
			text.WriteString(p.src.Text[t.Offset : t.Offset+t.Length])
			pieces = append(pieces, syntax.TriviaPiece{Kind: t.Kind, Length: t.Length})
			continue
		}
		p.tok = t
		p.trivia = syntax.RawTrivia{Text: text.String(), Pieces: pieces}
		return
	}
}

func (p *Parser) at(kind syntax.Kind) bool { return p.tok.Kind == kind }

func (p *Parser) atEOF() bool { return p.tok.Kind == syntax.KindEOFToken }

func (p *Parser) tokText() string {
	return p.src.Text[p.tok.Offset : p.tok.Offset+p.tok.Length]
}

// bump moves the current token into the tree and advances. EOF is never
// consumed here; parseProgram places it explicitly as the last leaf.
func (p *Parser) bump() {
	if p.atEOF() {
		return
	}
	p.builder.Token(p.tok.Kind, p.tokText(), p.trivia)
	p.expected = sets.New[syntax.Kind]()
	p.recovering = false
	p.advance()
}

// eat consumes the token when it matches; otherwise it records the kind as
// one more legal continuation and reports false.
func (p *Parser) eat(kind syntax.Kind) bool {
	if p.at(kind) {
		p.bump()
		return true
	}
	p.expected.Add(kind)
	return false
}

// expect is eat with a hard edge: a mismatch emits unexpected-token and
// enters recovery.
func (p *Parser) expect(kind syntax.Kind) bool {
	if p.eat(kind) {
		return true
	}
	p.unexpected()
	return false
}

// expectSemi is the softer variant between declarations and statements: the
// dedicated missing-semicolon diagnostic, no recovery, and an empty slot so
// fixed child positions survive.
func (p *Parser) expectSemi() {
	if p.eat(syntax.KindSemiToken) {
		return
	}
	p.builder.Null()
	if p.recovering {
		return
	}
	p.bag.Add(diag.Error(diag.MissingSemicolon, p.tok.Offset, p.tok.Offset+1,
		"semicolon is missing"))
}

// ----------------------------------------------------------------------------
// Recovery

func (p *Parser) pushFollow(kinds ...syntax.Kind) {
	p.follow = append(p.follow, sets.New(kinds...))
}

func (p *Parser) popFollow() {
	p.follow = p.follow[:len(p.follow)-1]
}

func (p *Parser) atFollow() bool {
	for _, set := range p.follow {
		if set.Has(p.tok.Kind) {
			return true
		}
	}
	return false
}

// unexpected emits the diagnostic listing the accumulated expected set, then
// splices tokens into an error node until a follow token or EOF comes up.
// While already recovering only the splicing happens, to avoid a cascade of
// messages for one mistake.
func (p *Parser) unexpected() {
	if !p.recovering {
		p.bag.Add(diag.Error(diag.UnexpectedToken, p.tok.Offset,
			p.tok.Offset+max(p.tok.Length, 1), p.unexpectedMessage()))
		p.recovering = true
	}
	p.skipToFollow()
}

func (p *Parser) unexpectedMessage() string {
	labels := make([]string, 0, p.expected.Len())
	for _, kind := range sets.Sort(p.expected) {
		labels = append(labels, kindLabel(kind))
	}

	expected := "end of declaration"
	switch {
	case len(labels) == 1:
		expected = labels[0]
	case len(labels) > 1:
		expected = strings.Join(labels[:len(labels)-1], ", ") + " or " + labels[len(labels)-1]
	}

	if p.atEOF() {
		return fmt.Sprintf("expected %s; found end of file", expected)
	}
	return fmt.Sprintf("expected %s; found `%s`", expected, p.tokText())
}

func (p *Parser) skipToFollow() {
	if p.atEOF() || p.atFollow() {
		return
	}
	p.builder.Open(syntax.KindError)
	for !p.atEOF() && !p.atFollow() {
		p.builder.Token(p.tok.Kind, p.tokText(), p.trivia)
		p.advance()
	}
	p.builder.Close()
}

func kindLabel(kind syntax.Kind) string {
	if text, ok := syntax.FixedText(kind); ok {
		return "`" + text + "`"
	}
	switch kind {
	case syntax.KindIdentToken:
		return "identifier"
	case syntax.KindNumberLit:
		return "number"
	case syntax.KindStringLit:
		return "string"
	default:
		return "expression"
	}
}

// ----------------------------------------------------------------------------
// Declarations

func (p *Parser) parseProgram() {
	p.builder.Open(syntax.KindProgram)
	p.pushFollow(syntax.KindDotToken)

	p.expect(syntax.KindProgramKw)
	p.expect(syntax.KindIdentToken)
	p.expectSemi()

	p.pushFollow(syntax.KindVarKw, syntax.KindProcedureKw, syntax.KindBeginKw)
	for {
		if p.at(syntax.KindVarKw) {
			p.parseVarDeclPart()
			continue
		}
		if p.at(syntax.KindProcedureKw) {
			p.parseProcDecl()
			continue
		}
		break
	}
	p.popFollow()

	if p.at(syntax.KindBeginKw) {
		p.parseCompStmt()
	} else {
		p.expected.Add(syntax.KindBeginKw)
		p.unexpected()
		p.builder.Null()
	}
	p.expect(syntax.KindDotToken)
	p.popFollow()

	// Anything after the closing dot is junk but stays in the tree.
	p.skipTrailing()
	p.builder.Token(syntax.KindEOFToken, "", p.trivia)
	p.builder.Close()
}

func (p *Parser) skipTrailing() {
	if p.atEOF() {
		return
	}
	p.builder.Open(syntax.KindError)
	for !p.atEOF() {
		p.builder.Token(p.tok.Kind, p.tokText(), p.trivia)
		p.advance()
	}
	p.builder.Close()
}

func (p *Parser) parseVarDeclPart() {
	p.builder.Open(syntax.KindVarDeclPart)
	p.pushFollow(syntax.KindVarKw, syntax.KindProcedureKw, syntax.KindBeginKw)

	p.bump() // var
	for {
		p.parseVarDecl()
		p.expectSemi()
		if !p.at(syntax.KindIdentToken) {
			break
		}
	}

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseVarDecl() {
	p.builder.Open(syntax.KindVarDecl)
	p.pushFollow(syntax.KindSemiToken)

	p.expect(syntax.KindIdentToken)
	for p.eat(syntax.KindCommaToken) {
		p.expect(syntax.KindIdentToken)
	}
	p.expect(syntax.KindColonToken)
	p.parseType()

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseType() {
	switch {
	case p.eat(syntax.KindIntegerKw), p.eat(syntax.KindBooleanKw), p.eat(syntax.KindCharKw):
		return

	case p.at(syntax.KindArrayKw):
		p.builder.Open(syntax.KindArrayType)
		p.bump() // array
		p.expect(syntax.KindLBracketToken)
		p.expect(syntax.KindNumberLit)
		p.expect(syntax.KindRBracketToken)
		p.expect(syntax.KindOfKw)
		p.parseStdType()
		p.builder.Close()

	default:
		p.expected.Add(syntax.KindArrayKw)
		p.unexpected()
		p.builder.Null()
	}
}

func (p *Parser) parseStdType() {
	if p.eat(syntax.KindIntegerKw) || p.eat(syntax.KindBooleanKw) || p.eat(syntax.KindCharKw) {
		return
	}
	p.unexpected()
	p.builder.Null()
}

func (p *Parser) parseProcDecl() {
	p.builder.Open(syntax.KindProcDecl)
	p.pushFollow(syntax.KindVarKw, syntax.KindProcedureKw, syntax.KindBeginKw)

	p.bump() // procedure
	p.expect(syntax.KindIdentToken)

	if p.at(syntax.KindLParenToken) {
		p.parseFmlParamList()
	} else {
		p.builder.Null()
	}
	p.expectSemi()

	if p.at(syntax.KindVarKw) {
		p.parseVarDeclPart()
	} else {
		p.builder.Null()
	}

	if p.at(syntax.KindBeginKw) {
		p.parseCompStmt()
	} else {
		p.expected.Add(syntax.KindBeginKw)
		p.unexpected()
		p.builder.Null()
	}
	p.expectSemi()

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseFmlParamList() {
	p.builder.Open(syntax.KindFmlParamList)
	p.pushFollow(syntax.KindRParenToken, syntax.KindSemiToken)

	p.bump() // (
	p.parseFmlParamSec()
	for p.eat(syntax.KindSemiToken) {
		p.parseFmlParamSec()
	}
	p.expect(syntax.KindRParenToken)

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseFmlParamSec() {
	p.builder.Open(syntax.KindFmlParamSec)
	p.pushFollow(syntax.KindSemiToken, syntax.KindRParenToken)

	p.expect(syntax.KindIdentToken)
	for p.eat(syntax.KindCommaToken) {
		p.expect(syntax.KindIdentToken)
	}
	p.expect(syntax.KindColonToken)
	p.parseType()

	p.popFollow()
	p.builder.Close()
}

// ----------------------------------------------------------------------------
// Statements

// statementFollow is what ends any single statement inside a compound.
var statementFollow = []syntax.Kind{
	syntax.KindSemiToken, syntax.KindEndKw, syntax.KindElseKw, syntax.KindDotToken,
}

func (p *Parser) parseStmt() {
	switch p.tok.Kind {
	case syntax.KindIdentToken:
		p.parseAssignStmt()
	case syntax.KindIfKw:
		p.parseIfStmt()
	case syntax.KindWhileKw:
		p.parseWhileStmt()
	case syntax.KindBreakKw:
		p.parseBreakStmt()
	case syntax.KindCallKw:
		p.parseCallStmt()
	case syntax.KindReturnKw:
		p.parseReturnStmt()
	case syntax.KindReadKw, syntax.KindReadLnKw:
		p.parseInputStmt()
	case syntax.KindWriteKw, syntax.KindWriteLnKw:
		p.parseOutputStmt()
	case syntax.KindBeginKw:
		p.parseCompStmt()
	default:
		// The empty statement: legal between semicolons, an empty slot keeps
		// its position.
		p.builder.Null()
	}
}

func (p *Parser) parseCompStmt() {
	p.builder.Open(syntax.KindCompStmt)
	p.pushFollow(syntax.KindEndKw, syntax.KindSemiToken)

	p.bump() // begin
	p.parseStmt()
	for {
		if p.eat(syntax.KindSemiToken) {
			p.parseStmt()
			continue
		}
		if p.at(syntax.KindEndKw) || p.atEOF() {
			break
		}
		// Junk between statements: one message, splice, carry on.
		p.expected.Add(syntax.KindEndKw)
		p.unexpected()
		if !p.at(syntax.KindSemiToken) && !p.at(syntax.KindEndKw) {
			break
		}
	}
	p.expect(syntax.KindEndKw)

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseAssignStmt() {
	p.builder.Open(syntax.KindAssignStmt)
	p.pushFollow(statementFollow...)

	p.parseVariable()
	p.expect(syntax.KindAssignToken)
	p.parseExpr()

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseIfStmt() {
	p.builder.Open(syntax.KindIfStmt)
	p.pushFollow(statementFollow...)

	p.bump() // if
	p.pushFollow(syntax.KindThenKw)
	p.parseExpr()
	p.popFollow()
	p.expect(syntax.KindThenKw)
	p.parseStmt()
	if p.at(syntax.KindElseKw) {
		p.bump()
		p.parseStmt()
	} else {
		p.builder.Null()
		p.builder.Null()
	}

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseWhileStmt() {
	p.builder.Open(syntax.KindWhileStmt)
	p.pushFollow(statementFollow...)

	p.bump() // while
	p.pushFollow(syntax.KindDoKw)
	p.parseExpr()
	p.popFollow()
	p.expect(syntax.KindDoKw)
	p.whileDepth++
	p.parseStmt()
	p.whileDepth--

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseBreakStmt() {
	p.builder.Open(syntax.KindBreakStmt)
	if p.whileDepth == 0 {
		// Accepted into the tree regardless; only the checker-visible
		// semantics are wrong.
		p.bag.Add(diag.Error(diag.BreakOutsideLoop, p.tok.Offset,
			p.tok.Offset+p.tok.Length, "break appears outside any while statement"))
	}
	p.bump() // break
	p.builder.Close()
}

func (p *Parser) parseCallStmt() {
	p.builder.Open(syntax.KindCallStmt)
	p.pushFollow(statementFollow...)

	p.bump() // call
	p.expect(syntax.KindIdentToken)
	if p.at(syntax.KindLParenToken) {
		p.parseActParamList()
	} else {
		p.builder.Null()
	}

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseActParamList() {
	p.builder.Open(syntax.KindActParamList)
	p.pushFollow(syntax.KindRParenToken)

	p.bump() // (
	p.parseExpr()
	for p.eat(syntax.KindCommaToken) {
		p.parseExpr()
	}
	p.expect(syntax.KindRParenToken)

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseReturnStmt() {
	p.builder.Open(syntax.KindReturnStmt)
	p.bump() // return
	p.builder.Close()
}

func (p *Parser) parseInputStmt() {
	p.builder.Open(syntax.KindInputStmt)
	p.pushFollow(statementFollow...)

	p.bump() // read or readln
	if p.at(syntax.KindLParenToken) {
		p.builder.Open(syntax.KindInputList)
		p.pushFollow(syntax.KindRParenToken)
		p.bump() // (
		p.parseVariable()
		for p.eat(syntax.KindCommaToken) {
			p.parseVariable()
		}
		p.expect(syntax.KindRParenToken)
		p.popFollow()
		p.builder.Close()
	} else {
		p.builder.Null()
	}

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseOutputStmt() {
	p.builder.Open(syntax.KindOutputStmt)
	p.pushFollow(statementFollow...)

	p.bump() // write or writeln
	if p.at(syntax.KindLParenToken) {
		p.builder.Open(syntax.KindOutputList)
		p.pushFollow(syntax.KindRParenToken)
		p.bump() // (
		p.parseOutputValue()
		for p.eat(syntax.KindCommaToken) {
			p.parseOutputValue()
		}
		p.expect(syntax.KindRParenToken)
		p.popFollow()
		p.builder.Close()
	} else {
		p.builder.Null()
	}

	p.popFollow()
	p.builder.Close()
}

func (p *Parser) parseOutputValue() {
	p.builder.Open(syntax.KindOutputValue)

	p.parseExpr()
	if p.eat(syntax.KindColonToken) {
		p.expect(syntax.KindNumberLit)
	} else {
		p.builder.Null()
		p.builder.Null()
	}

	p.builder.Close()
}

// ----------------------------------------------------------------------------
// Expressions

// Three binding tiers: relational below additive below multiplicative, with
// not, unary sign, parentheses and the type-keyword cast as prefixes. Binary
// nodes are built by reopening at a checkpoint so an already-parsed prefix
// becomes the LHS without re-parsing.

func (p *Parser) parseExpr() {
	cp := p.builder.Checkpoint()
	p.parseSimpleExpr()

	for p.eat(syntax.KindEqualToken) || p.eat(syntax.KindNotEqToken) ||
		p.eat(syntax.KindLessToken) || p.eat(syntax.KindLessEqToken) ||
		p.eat(syntax.KindGreaterToken) || p.eat(syntax.KindGreaterEqToken) {
		p.reopenBinary(cp)
		p.parseSimpleExpr()
		p.builder.Close()
	}
}

func (p *Parser) parseSimpleExpr() {
	cp := p.builder.Checkpoint()

	if p.at(syntax.KindPlusToken) || p.at(syntax.KindMinusToken) {
		// Unary sign: a binary node with an empty LHS slot.
		p.builder.Open(syntax.KindBinaryExpr)
		p.builder.Null()
		p.bump()
		p.parseTerm()
		p.builder.Close()
	} else {
		p.parseTerm()
	}

	for p.eat(syntax.KindPlusToken) || p.eat(syntax.KindMinusToken) || p.eat(syntax.KindOrKw) {
		p.reopenBinary(cp)
		p.parseTerm()
		p.builder.Close()
	}
}

func (p *Parser) parseTerm() {
	cp := p.builder.Checkpoint()
	p.parseFactor()

	for p.eat(syntax.KindStarToken) || p.eat(syntax.KindDivKw) || p.eat(syntax.KindAndKw) {
		p.reopenBinary(cp)
		p.parseFactor()
		p.builder.Close()
	}
}

// reopenBinary wraps everything since the checkpoint (the LHS and the just
// consumed operator) into a BINARY_EXPR left open for the RHS.
func (p *Parser) reopenBinary(cp syntax.Checkpoint) {
	p.builder.OpenAt(cp, syntax.KindBinaryExpr)
}

func (p *Parser) parseFactor() {
	switch p.tok.Kind {
	case syntax.KindIdentToken:
		p.parseVariable()

	case syntax.KindNumberLit, syntax.KindStringLit, syntax.KindTrueKw, syntax.KindFalseKw:
		p.bump()

	case syntax.KindLParenToken:
		p.builder.Open(syntax.KindParenExpr)
		p.pushFollow(syntax.KindRParenToken)
		p.bump()
		p.parseExpr()
		p.expect(syntax.KindRParenToken)
		p.popFollow()
		p.builder.Close()

	case syntax.KindNotKw:
		p.builder.Open(syntax.KindNotExpr)
		p.bump()
		p.parseFactor()
		p.builder.Close()

	case syntax.KindIntegerKw, syntax.KindBooleanKw, syntax.KindCharKw:
		p.builder.Open(syntax.KindCastExpr)
		p.pushFollow(syntax.KindRParenToken)
		p.bump()
		p.expect(syntax.KindLParenToken)
		p.parseExpr()
		p.expect(syntax.KindRParenToken)
		p.popFollow()
		p.builder.Close()

	default:
		if !p.recovering {
			p.bag.Add(diag.Error(diag.ExpectedExpression, p.tok.Offset,
				p.tok.Offset+max(p.tok.Length, 1),
				fmt.Sprintf("expected expression; found `%s`", p.tokText())))
			p.recovering = true
		}
		p.builder.Open(syntax.KindError)
		if !p.atEOF() && !p.atFollow() {
			p.builder.Token(p.tok.Kind, p.tokText(), p.trivia)
			p.advance()
		}
		p.builder.Close()
	}
}

func (p *Parser) parseVariable() {
	if !p.at(syntax.KindIdentToken) {
		p.expected.Add(syntax.KindIdentToken)
		p.unexpected()
		p.builder.Null()
		return
	}

	cp := p.builder.Checkpoint()
	p.bump() // ident

	if p.at(syntax.KindLBracketToken) {
		// Reclose the identifier as the head of an indexed variable.
		p.builder.OpenAt(cp, syntax.KindIndexedVar)
		p.bump() // [
		p.pushFollow(syntax.KindRBracketToken)
		p.parseExpr()
		p.expect(syntax.KindRBracketToken)
		p.popFollow()
		p.builder.Close()
	} else {
		p.builder.OpenAt(cp, syntax.KindEntireVar)
		p.builder.Close()
	}
}
