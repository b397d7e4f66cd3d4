package syntax

// ----------------------------------------------------------------------------
// General information

// This section enumerates every node kind of the MPPL concrete syntax: tokens
// (punctuation, keywords, literals, identifiers), trivia (whitespace and the
// two comment styles) and the inner productions. The single enumeration is
// shared by the lexer, the parser, the typed accessors and the printers, so
// a kind comparison means the same thing at every stage.

type Kind int

const (
	KindError Kind = iota // Bogus token or recovery subtree

	// Tokens carrying free text.
	KindIdentToken
	KindNumberLit
	KindStringLit

	// Punctuation.
	KindPlusToken
	KindMinusToken
	KindStarToken
	KindEqualToken
	KindNotEqToken
	KindLessToken
	KindLessEqToken
	KindGreaterToken
	KindGreaterEqToken
	KindLParenToken
	KindRParenToken
	KindLBracketToken
	KindRBracketToken
	KindAssignToken
	KindDotToken
	KindCommaToken
	KindColonToken
	KindSemiToken

	// Keywords. Identifier lexemes are reclassified against the table below.
	KindProgramKw
	KindVarKw
	KindArrayKw
	KindOfKw
	KindBeginKw
	KindEndKw
	KindIfKw
	KindThenKw
	KindElseKw
	KindProcedureKw
	KindReturnKw
	KindCallKw
	KindWhileKw
	KindDoKw
	KindNotKw
	KindOrKw
	KindDivKw
	KindAndKw
	KindCharKw
	KindIntegerKw
	KindBooleanKw
	KindReadKw
	KindWriteKw
	KindReadLnKw
	KindWriteLnKw
	KindTrueKw
	KindFalseKw
	KindBreakKw

	KindEOFToken

	// Trivia. Attached to the next token, never a grammar child.
	KindSpaceTrivia
	KindBracesCommentTrivia
	KindCCommentTrivia

	// Inner productions.
	KindProgram
	KindVarDeclPart
	KindVarDecl
	KindArrayType
	KindProcDecl
	KindFmlParamList
	KindFmlParamSec
	KindAssignStmt
	KindIfStmt
	KindWhileStmt
	KindBreakStmt
	KindCallStmt
	KindActParamList
	KindReturnStmt
	KindInputStmt
	KindInputList
	KindOutputStmt
	KindOutputList
	KindOutputValue
	KindCompStmt
	KindEntireVar
	KindIndexedVar
	KindBinaryExpr
	KindParenExpr
	KindNotExpr
	KindCastExpr

	SentinelKind
)

var kindNames = map[Kind]string{
	KindError:          "ERROR",
	KindIdentToken:     "IDENT_TOKEN",
	KindNumberLit:      "NUMBER_LIT",
	KindStringLit:      "STRING_LIT",
	KindPlusToken:      "PLUS_TOKEN",
	KindMinusToken:     "MINUS_TOKEN",
	KindStarToken:      "STAR_TOKEN",
	KindEqualToken:     "EQUAL_TOKEN",
	KindNotEqToken:     "NOTEQ_TOKEN",
	KindLessToken:      "LESS_TOKEN",
	KindLessEqToken:    "LESSEQ_TOKEN",
	KindGreaterToken:   "GREATER_TOKEN",
	KindGreaterEqToken: "GREATEREQ_TOKEN",
	KindLParenToken:    "LPAREN_TOKEN",
	KindRParenToken:    "RPAREN_TOKEN",
	KindLBracketToken:  "LBRACKET_TOKEN",
	KindRBracketToken:  "RBRACKET_TOKEN",
	KindAssignToken:    "ASSIGN_TOKEN",
	KindDotToken:       "DOT_TOKEN",
	KindCommaToken:     "COMMA_TOKEN",
	KindColonToken:     "COLON_TOKEN",
	KindSemiToken:      "SEMI_TOKEN",

	KindProgramKw:   "PROGRAM_KW",
	KindVarKw:       "VAR_KW",
	KindArrayKw:     "ARRAY_KW",
	KindOfKw:        "OF_KW",
	KindBeginKw:     "BEGIN_KW",
	KindEndKw:       "END_KW",
	KindIfKw:        "IF_KW",
	KindThenKw:      "THEN_KW",
	KindElseKw:      "ELSE_KW",
	KindProcedureKw: "PROCEDURE_KW",
	KindReturnKw:    "RETURN_KW",
	KindCallKw:      "CALL_KW",
	KindWhileKw:     "WHILE_KW",
	KindDoKw:        "DO_KW",
	KindNotKw:       "NOT_KW",
	KindOrKw:        "OR_KW",
	KindDivKw:       "DIV_KW",
	KindAndKw:       "AND_KW",
	KindCharKw:      "CHAR_KW",
	KindIntegerKw:   "INTEGER_KW",
	KindBooleanKw:   "BOOLEAN_KW",
	KindReadKw:      "READ_KW",
	KindWriteKw:     "WRITE_KW",
	KindReadLnKw:    "READLN_KW",
	KindWriteLnKw:   "WRITELN_KW",
	KindTrueKw:      "TRUE_KW",
	KindFalseKw:     "FALSE_KW",
	KindBreakKw:     "BREAK_KW",

	KindEOFToken: "EOF_TOKEN",

	KindSpaceTrivia:         "SPACE_TRIVIA",
	KindBracesCommentTrivia: "BRACES_COMMENT_TRIVIA",
	KindCCommentTrivia:      "C_COMMENT_TRIVIA",

	KindProgram:      "PROGRAM",
	KindVarDeclPart:  "VAR_DECL_PART",
	KindVarDecl:      "VAR_DECL",
	KindArrayType:    "ARRAY_TYPE",
	KindProcDecl:     "PROC_DECL",
	KindFmlParamList: "FML_PARAM_LIST",
	KindFmlParamSec:  "FML_PARAM_SEC",
	KindAssignStmt:   "ASSIGN_STMT",
	KindIfStmt:       "IF_STMT",
	KindWhileStmt:    "WHILE_STMT",
	KindBreakStmt:    "BREAK_STMT",
	KindCallStmt:     "CALL_STMT",
	KindActParamList: "ACT_PARAM_LIST",
	KindReturnStmt:   "RETURN_STMT",
	KindInputStmt:    "INPUT_STMT",
	KindInputList:    "INPUT_LIST",
	KindOutputStmt:   "OUTPUT_STMT",
	KindOutputList:   "OUTPUT_LIST",
	KindOutputValue:  "OUTPUT_VALUE",
	KindCompStmt:     "COMP_STMT",
	KindEntireVar:    "ENTIRE_VAR",
	KindIndexedVar:   "INDEXED_VAR",
	KindBinaryExpr:   "BINARY_EXPR",
	KindParenExpr:    "PAREN_EXPR",
	KindNotExpr:      "NOT_EXPR",
	KindCastExpr:     "CAST_EXPR",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ----------------------------------------------------------------------------
// Classification

var keywords = map[string]Kind{
	"program":   KindProgramKw,
	"var":       KindVarKw,
	"array":     KindArrayKw,
	"of":        KindOfKw,
	"begin":     KindBeginKw,
	"end":       KindEndKw,
	"if":        KindIfKw,
	"then":      KindThenKw,
	"else":      KindElseKw,
	"procedure": KindProcedureKw,
	"return":    KindReturnKw,
	"call":      KindCallKw,
	"while":     KindWhileKw,
	"do":        KindDoKw,
	"not":       KindNotKw,
	"or":        KindOrKw,
	"div":       KindDivKw,
	"and":       KindAndKw,
	"char":      KindCharKw,
	"integer":   KindIntegerKw,
	"boolean":   KindBooleanKw,
	"read":      KindReadKw,
	"write":     KindWriteKw,
	"readln":    KindReadLnKw,
	"writeln":   KindWriteLnKw,
	"true":      KindTrueKw,
	"false":     KindFalseKw,
	"break":     KindBreakKw,
}

var punctTexts = map[Kind]string{
	KindPlusToken:      "+",
	KindMinusToken:     "-",
	KindStarToken:      "*",
	KindEqualToken:     "=",
	KindNotEqToken:     "<>",
	KindLessToken:      "<",
	KindLessEqToken:    "<=",
	KindGreaterToken:   ">",
	KindGreaterEqToken: ">=",
	KindLParenToken:    "(",
	KindRParenToken:    ")",
	KindLBracketToken:  "[",
	KindRBracketToken:  "]",
	KindAssignToken:    ":=",
	KindDotToken:       ".",
	KindCommaToken:     ",",
	KindColonToken:     ":",
	KindSemiToken:      ";",
}

// KeywordKind reclassifies an identifier lexeme, reporting whether it is a
// reserved word.
func KeywordKind(lexeme string) (Kind, bool) {
	k, ok := keywords[lexeme]
	return k, ok
}

// FixedText returns the source text of a punctuation or keyword kind. Tokens
// with free text (identifiers, literals) report false.
func FixedText(k Kind) (string, bool) {
	if text, ok := punctTexts[k]; ok {
		return text, true
	}
	for text, kw := range keywords {
		if kw == k {
			return text, true
		}
	}
	return "", false
}

func (k Kind) IsToken() bool {
	return k >= KindError && k <= KindEOFToken
}

func (k Kind) IsTrivia() bool {
	return k >= KindSpaceTrivia && k <= KindCCommentTrivia
}

func (k Kind) IsKeyword() bool {
	return k >= KindProgramKw && k <= KindBreakKw
}

func (k Kind) IsPunct() bool {
	return k >= KindPlusToken && k <= KindSemiToken
}

// IsStmt reports whether the kind is one of the statement productions.
func (k Kind) IsStmt() bool {
	switch k {
	case KindAssignStmt, KindIfStmt, KindWhileStmt, KindBreakStmt, KindCallStmt,
		KindReturnStmt, KindInputStmt, KindOutputStmt, KindCompStmt:
		return true
	}
	return false
}

// IsExpr reports whether the kind can appear where an expression is expected.
func (k Kind) IsExpr() bool {
	switch k {
	case KindEntireVar, KindIndexedVar, KindBinaryExpr, KindParenExpr,
		KindNotExpr, KindCastExpr, KindNumberLit, KindStringLit,
		KindTrueKw, KindFalseKw:
		return true
	}
	return false
}
