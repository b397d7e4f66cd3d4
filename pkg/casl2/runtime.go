package casl2

// ----------------------------------------------------------------------------
// Runtime library

// The builtin I/O helpers and runtime error routines, emitted on demand: the
// generator's helperSet records which specializations the program used and
// the epilogue lays down only those, plus the shared line-buffered output
// and input routines they sit on.
//
// Output is line buffered through BOBUF/BOCUR and flushed by BFLUSH (the OUT
// macro emits one line). Input reads a line at a time into BIBUF via BRREAD
// and BRTOP yields the current character without consuming it. Runtime
// errors print a fixed message through the write path and halt with a
// distinct SVC code.

// emitRuntime appends the used helpers and their data cells to the program.
func (g *Generator) emitRuntime(out *Program) {
	h := g.used

	if h.writeStr || h.anyWrite() {
		g.emitFlush(out)
		g.emitWriteString(out)
	}
	if h.writeLn {
		out.Add("BWLN", OpCALL, "BFLUSH")
		out.Add("", OpRET)
	}
	if h.writeInt {
		g.emitWriteInteger(out)
	}
	if h.writeBool {
		g.emitWriteBoolean(out)
	}
	if h.writeChar {
		g.emitWriteChar(out)
	}

	if h.anyRead() {
		g.emitReadLine(out)
	}
	if h.readInt {
		g.emitReadInteger(out)
	}
	if h.readChar {
		g.emitReadChar(out)
	}
	if h.readLn {
		out.Add("BRLN", OpCALL, "BRREAD")
		out.Add("", OpRET)
	}

	g.emitErrors(out)
	g.emitRuntimeData(out)
}

// ----------------------------------------------------------------------------
// Output path

func (g *Generator) emitFlush(out *Program) {
	out.Add("BFLUSH", OpOUT, "BOBUF", "BOCUR")
	out.Add("", OpLAD, "GR0", "0")
	out.Add("", OpST, "GR0", "BOCUR")
	out.Add("", OpRET)
}

// BWSTR copies GR2 characters starting at address GR1 into the output
// buffer, flushing whenever the buffer fills.
func (g *Generator) emitWriteString(out *Program) {
	out.Add("BWSTR", OpLD, "GR2", "GR2")
	out.Add("", OpJZE, "BWSTR2")
	out.Add("", OpLD, "GR4", "0", "GR1")
	out.Add("", OpLD, "GR5", "BOCUR")
	out.Add("", OpST, "GR4", "BOBUF", "GR5")
	out.Add("", OpLAD, "GR5", "1", "GR5")
	out.Add("", OpST, "GR5", "BOCUR")
	out.Add("", OpLAD, "GR6", "256")
	out.Add("", OpCPA, "GR5", "GR6")
	out.Add("", OpJMI, "BWSTR1")
	out.Add("", OpCALL, "BFLUSH")
	out.Add("BWSTR1", OpLAD, "GR1", "1", "GR1")
	out.Add("", OpLAD, "GR2", "-1", "GR2")
	out.Add("", OpJUMP, "BWSTR")
	out.Add("BWSTR2", OpRET)
}

// BSINT renders the signed value in GR1 right aligned in the field width
// held by GR2 (zero means natural width), then hands the digits to BWSTR.
func (g *Generator) emitWriteInteger(out *Program) {
	out.Add("BSINT", OpST, "GR2", "BSWID")
	out.Add("", OpLAD, "GR5", "16") // Digits fill BSBUF backwards from the end
	out.Add("", OpLD, "GR4", "GR1")
	out.Add("", OpJPL, "BSINT1")
	out.Add("", OpJZE, "BSINT1")
	out.Add("", OpLAD, "GR6", "0")
	out.Add("", OpSUBA, "GR6", "GR4")
	out.Add("", OpLD, "GR4", "GR6")
	// One digit per turn: split off value div 10, store value mod 10.
	out.Add("BSINT1", OpLD, "GR6", "GR4")
	out.Add("", OpLAD, "GR7", "10")
	out.Add("", OpDIVA, "GR6", "GR7")
	out.Add("", OpLD, "GR7", "GR6")
	out.Add("", OpLAD, "GR3", "10")
	out.Add("", OpMULA, "GR7", "GR3")
	out.Add("", OpLD, "GR3", "GR4")
	out.Add("", OpSUBA, "GR3", "GR7")
	out.Add("", OpLAD, "GR7", "48")
	out.Add("", OpADDA, "GR3", "GR7")
	out.Add("", OpLAD, "GR5", "-1", "GR5")
	out.Add("", OpST, "GR3", "BSBUF", "GR5")
	out.Add("", OpLD, "GR4", "GR6")
	out.Add("", OpJNZ, "BSINT1")
	// Sign.
	out.Add("", OpLD, "GR1", "GR1")
	out.Add("", OpJPL, "BSINT2")
	out.Add("", OpJZE, "BSINT2")
	out.Add("", OpLAD, "GR3", "45")
	out.Add("", OpLAD, "GR5", "-1", "GR5")
	out.Add("", OpST, "GR3", "BSBUF", "GR5")
	// Left pad with spaces up to the requested width.
	out.Add("BSINT2", OpLAD, "GR6", "16")
	out.Add("", OpSUBA, "GR6", "GR5")
	out.Add("", OpLD, "GR7", "BSWID")
	out.Add("", OpSUBA, "GR7", "GR6")
	out.Add("BSINT3", OpLD, "GR7", "GR7")
	out.Add("", OpJZE, "BSINT4")
	out.Add("", OpJMI, "BSINT4")
	out.Add("", OpLD, "GR3", "BCSP")
	out.Add("", OpLAD, "GR5", "-1", "GR5")
	out.Add("", OpST, "GR3", "BSBUF", "GR5")
	out.Add("", OpLAD, "GR6", "1", "GR6")
	out.Add("", OpLAD, "GR7", "-1", "GR7")
	out.Add("", OpJUMP, "BSINT3")
	out.Add("BSINT4", OpLAD, "GR1", "BSBUF", "GR5")
	out.Add("", OpLD, "GR2", "GR6")
	out.Add("", OpCALL, "BWSTR")
	out.Add("", OpRET)
}

func (g *Generator) emitWriteBoolean(out *Program) {
	out.Add("BSBOOL", OpLD, "GR1", "GR1")
	out.Add("", OpJZE, "BSBOOL1")
	out.Add("", OpLAD, "GR1", "BCTRUE")
	out.Add("", OpLAD, "GR2", "4")
	out.Add("", OpCALL, "BWSTR")
	out.Add("", OpRET)
	out.Add("BSBOOL1", OpLAD, "GR1", "BCFALSE")
	out.Add("", OpLAD, "GR2", "5")
	out.Add("", OpCALL, "BWSTR")
	out.Add("", OpRET)
}

func (g *Generator) emitWriteChar(out *Program) {
	out.Add("BSCHAR", OpST, "GR1", "BSBUF")
	out.Add("", OpLAD, "GR1", "BSBUF")
	out.Add("", OpLAD, "GR2", "1")
	out.Add("", OpCALL, "BWSTR")
	out.Add("", OpRET)
}

// ----------------------------------------------------------------------------
// Input path

func (g *Generator) emitReadLine(out *Program) {
	out.Add("BRREAD", OpIN, "BIBUF", "BILEN")
	out.Add("", OpLAD, "GR0", "0")
	out.Add("", OpST, "GR0", "BICUR")
	out.Add("", OpRET)
	// BRTOP leaves the current character in GR0, pulling in a fresh line
	// when the cursor ran off the previous one.
	out.Add("BRTOP", OpLD, "GR6", "BICUR")
	out.Add("", OpCPA, "GR6", "BILEN")
	out.Add("", OpJMI, "BRTOP1")
	out.Add("", OpCALL, "BRREAD")
	out.Add("", OpLAD, "GR6", "0")
	out.Add("BRTOP1", OpLD, "GR0", "BIBUF", "GR6")
	out.Add("", OpRET)
}

// BRINT parses an optionally signed decimal from the input into the address
// held in GR1.
func (g *Generator) emitReadInteger(out *Program) {
	out.Add("BRINT", OpLAD, "GR4", "0") // Accumulator
	out.Add("", OpLAD, "GR5", "0")      // Sign flag
	// Skip blanks.
	out.Add("BRINT1", OpCALL, "BRTOP")
	out.Add("", OpLAD, "GR7", "32")
	out.Add("", OpCPA, "GR0", "GR7")
	out.Add("", OpJNZ, "BRINT2")
	out.Add("", OpLD, "GR6", "BICUR")
	out.Add("", OpLAD, "GR6", "1", "GR6")
	out.Add("", OpST, "GR6", "BICUR")
	out.Add("", OpJUMP, "BRINT1")
	// Optional minus.
	out.Add("BRINT2", OpLAD, "GR7", "45")
	out.Add("", OpCPA, "GR0", "GR7")
	out.Add("", OpJNZ, "BRINT3")
	out.Add("", OpLAD, "GR5", "1")
	out.Add("", OpLD, "GR6", "BICUR")
	out.Add("", OpLAD, "GR6", "1", "GR6")
	out.Add("", OpST, "GR6", "BICUR")
	// Accumulate digits; a non-digit ends the number.
	out.Add("BRINT3", OpCALL, "BRTOP")
	out.Add("", OpLAD, "GR7", "48")
	out.Add("", OpCPA, "GR0", "GR7")
	out.Add("", OpJMI, "BRINT4")
	out.Add("", OpLAD, "GR7", "57")
	out.Add("", OpCPA, "GR0", "GR7")
	out.Add("", OpJPL, "BRINT4")
	out.Add("", OpLAD, "GR7", "10")
	out.Add("", OpMULA, "GR4", "GR7")
	out.Add("", OpJOV, "EOV")
	out.Add("", OpLAD, "GR7", "48")
	out.Add("", OpSUBA, "GR0", "GR7")
	out.Add("", OpADDA, "GR4", "GR0")
	out.Add("", OpJOV, "EOV")
	out.Add("", OpLD, "GR6", "BICUR")
	out.Add("", OpLAD, "GR6", "1", "GR6")
	out.Add("", OpST, "GR6", "BICUR")
	out.Add("", OpJUMP, "BRINT3")
	out.Add("BRINT4", OpLD, "GR5", "GR5")
	out.Add("", OpJZE, "BRINT5")
	out.Add("", OpLAD, "GR7", "0")
	out.Add("", OpSUBA, "GR7", "GR4")
	out.Add("", OpLD, "GR4", "GR7")
	out.Add("BRINT5", OpST, "GR4", "0", "GR1")
	out.Add("", OpRET)
}

func (g *Generator) emitReadChar(out *Program) {
	out.Add("BRCHAR", OpCALL, "BRTOP")
	out.Add("", OpLD, "GR6", "BICUR")
	out.Add("", OpLAD, "GR6", "1", "GR6")
	out.Add("", OpST, "GR6", "BICUR")
	out.Add("", OpST, "GR0", "0", "GR1")
	out.Add("", OpRET)
}

// ----------------------------------------------------------------------------
// Runtime errors

// Each error routine prints its fixed message through the write path and
// halts with its own SVC code.
func (g *Generator) emitErrors(out *Program) {
	if g.used.errOverflow {
		out.Add("EOV", OpLAD, "GR1", "EMSG1")
		out.Add("", OpLAD, "GR2", "8")
		out.Add("", OpCALL, "BWSTR")
		out.Add("", OpCALL, "BFLUSH")
		out.Add("", OpSVC, "1")
	}
	if g.used.errDivZero {
		out.Add("EDIV0", OpLAD, "GR1", "EMSG2")
		out.Add("", OpLAD, "GR2", "13")
		out.Add("", OpCALL, "BWSTR")
		out.Add("", OpCALL, "BFLUSH")
		out.Add("", OpSVC, "2")
	}
	if g.used.errRange {
		out.Add("ERNG", OpLAD, "GR1", "EMSG3")
		out.Add("", OpLAD, "GR2", "11")
		out.Add("", OpCALL, "BWSTR")
		out.Add("", OpCALL, "BFLUSH")
		out.Add("", OpSVC, "3")
	}
}

func (g *Generator) emitRuntimeData(out *Program) {
	h := g.used

	if h.writeStr || h.anyWrite() {
		out.Add("BOBUF", OpDS, "257")
		out.Add("BOCUR", OpDS, "1")
		out.Add("BCSP", OpDC, "32")
		out.Add("BCLF", OpDC, "10")
		out.Add("BCTAB", OpDC, "9")
	}
	if h.writeInt || h.writeChar {
		out.Add("BSBUF", OpDS, "17")
		out.Add("BSWID", OpDS, "1")
	}
	if h.writeBool {
		out.Add("BCTRUE", OpDC, "'TRUE'")
		out.Add("BCFALSE", OpDC, "'FALSE'")
	}
	if h.anyRead() {
		out.Add("BIBUF", OpDS, "256")
		out.Add("BILEN", OpDS, "1")
		out.Add("BICUR", OpDS, "1")
	}
	if h.errOverflow {
		out.Add("EMSG1", OpDC, "'overflow'")
	}
	if h.errDivZero {
		out.Add("EMSG2", OpDC, "'zero division'")
	}
	if h.errRange {
		out.Add("EMSG3", OpDC, "'range error'")
	}
}
