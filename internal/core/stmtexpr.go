package core

import "bytes"

// The C grammar has no production for GNU statement expressions, and error
// recovery on "({ ... })" can eject the surrounding statements from the
// tree. normalizeStmtExprs rewrites them before parsing: the inner
// statements are hoisted in front of the enclosing statement and the whole
// form collapses to its final expression.
//
//	p = ({ void *t; t = alloc(n); t; });
//
// becomes
//
//	void *t; t = alloc(n); p = (t);
//
// No newline is added or removed, so a single-line form leaves every line
// number in the file unchanged.
func normalizeStmtExprs(src []byte) []byte {
	if !bytes.Contains(src, []byte("({")) {
		return src
	}
	// every rewrite strictly shrinks the source, so this terminates
	for {
		out, rewritten := rewriteStmtExpr(src)
		if !rewritten {
			return out
		}
		src = out
	}
}

func rewriteStmtExpr(src []byte) ([]byte, bool) {
	open, braceOpen := findStmtExprOpen(src)
	if open < 0 {
		return src, false
	}
	braceClose := matchBrace(src, braceOpen)
	if braceClose < 0 {
		return src, false
	}
	end := braceClose + 1
	for end < len(src) && isSpace(src[end]) {
		end++
	}
	if end >= len(src) || src[end] != ')' {
		return src, false
	}

	hoist, value := splitFinalExpr(src[braceOpen+1 : braceClose])
	insert := enclosingStmtStart(src, open)

	var out bytes.Buffer
	out.Grow(len(src))
	out.Write(src[:insert])
	out.Write(hoist)
	out.Write(src[insert:open])
	out.WriteByte('(')
	out.Write(value)
	out.WriteByte(')')
	out.Write(src[end+1:])
	return out.Bytes(), true
}

// findStmtExprOpen locates the next "(" that opens a brace, skipping
// comments and literals. Returns the indices of the paren and the brace.
func findStmtExprOpen(src []byte) (int, int) {
	i := 0
	for i < len(src) {
		if j := skipNoise(src, i); j > i {
			i = j
			continue
		}
		if src[i] == '(' {
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
				j++
			}
			if j < len(src) && src[j] == '{' {
				return i, j
			}
		}
		i++
	}
	return -1, -1
}

// matchBrace returns the index of the brace closing the one at open, or -1
// when the source ends first.
func matchBrace(src []byte, open int) int {
	depth := 0
	i := open
	for i < len(src) {
		if j := skipNoise(src, i); j > i {
			i = j
			continue
		}
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// splitFinalExpr divides a statement-expression body into the statements to
// hoist and the final expression that is the form's value.
func splitFinalExpr(inner []byte) (hoist, value []byte) {
	depth := 0
	prev, last := -1, -1 // the two rightmost top-level ';'
	i := 0
	for i < len(inner) {
		if j := skipNoise(inner, i); j > i {
			i = j
			continue
		}
		switch inner[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				prev, last = last, i
			}
		}
		i++
	}

	start := 0
	switch {
	case last < 0:
		// no statements, the whole body is the value
	case len(bytes.TrimSpace(inner[last+1:])) > 0:
		// trailing expression without its ';'
		start = last + 1
	case prev >= 0:
		start = prev + 1
	}
	hoist = inner[:start]
	value = bytes.TrimSpace(inner[start:])
	value = bytes.TrimSpace(bytes.TrimSuffix(value, []byte(";")))
	return hoist, value
}

// enclosingStmtStart finds where the statement containing pos begins: just
// after the previous statement boundary.
func enclosingStmtStart(src []byte, pos int) int {
	start := 0
	i := 0
	for i < pos {
		if j := skipNoise(src, i); j > i {
			i = j
			continue
		}
		switch src[i] {
		case ';', '{', '}':
			start = i + 1
		}
		i++
	}
	return start
}

// skipNoise advances past a comment or a string/char literal starting at i,
// returning i itself when none starts there.
func skipNoise(src []byte, i int) int {
	switch src[i] {
	case '"', '\'':
		quote := src[i]
		j := i + 1
		for j < len(src) {
			if src[j] == '\\' {
				j += 2
				continue
			}
			if src[j] == quote {
				return j + 1
			}
			j++
		}
		return j
	case '/':
		if i+1 >= len(src) {
			return i
		}
		switch src[i+1] {
		case '/':
			j := i + 2
			for j < len(src) && src[j] != '\n' {
				j++
			}
			return j
		case '*':
			j := i + 2
			for j+1 < len(src) {
				if src[j] == '*' && src[j+1] == '/' {
					return j + 2
				}
				j++
			}
			return len(src)
		}
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
