package refactor

import (
	"strings"
	"unicode"

	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// lineInfo is what the scanner learned about one selected line.
type lineInfo struct {
	indent  string // leading whitespace
	code    bool   // has code outside comments and strings
	atDepth bool   // starts at bracket depth zero outside any literal
	opener  bool   // last code character is ':' (indentation languages)
}

// returnSite is a return keyword found at code level.
type returnSite struct {
	line  int // index into the selected lines
	depth int // bracket depth at the keyword
}

// scanResult is the lexical summary of a selection.
type scanResult struct {
	lines        []lineInfo
	returns      []returnSite
	mismatched   bool // a closer did not match its opener or had none
	unclosed     int  // brackets still open at the end
	unterminated bool // a string or block comment runs past the selection
}

var closers = map[rune]rune{')': '(', ']': '[', '}': '{'}

// scanLines walks the selected lines tracking strings, comments and
// brackets with the language's lexical rules.
func scanLines(lines []string, syn parsers.Syntax) scanResult {
	res := scanResult{lines: make([]lineInfo, len(lines))}

	var (
		stack   []rune
		quote   rune // open string delimiter, 0 when outside
		triple  bool
		inBlock bool
	)

	for li, line := range lines {
		info := lineInfo{indent: leadingSpace(line)}
		info.atDepth = len(stack) == 0 && quote == 0 && !inBlock
		var last rune

		runes := []rune(line)
		for i := 0; i < len(runes); i++ {
			c := runes[i]
			rest := string(runes[i:])

			switch {
			case inBlock:
				if end := syn.BlockComment[1]; strings.HasPrefix(rest, end) {
					inBlock = false
					i += len([]rune(end)) - 1
				}
				continue

			case quote != 0:
				if c == '\\' {
					i++
					continue
				}
				if c != quote {
					continue
				}
				if triple {
					if strings.HasPrefix(rest, strings.Repeat(string(quote), 3)) {
						quote, triple = 0, false
						i += 2
						info.code, last = true, c
					}
					continue
				}
				quote = 0
				info.code, last = true, c
				continue
			}

			if unicode.IsSpace(c) {
				continue
			}
			if hasAnyPrefix(rest, syn.LineComments) {
				break
			}
			if start := syn.BlockComment[0]; start != "" && strings.HasPrefix(rest, start) {
				inBlock = true
				i += len([]rune(start)) - 1
				continue
			}

			info.code, last = true, c
			switch {
			case strings.ContainsRune(syn.Quotes, c):
				quote = c
				if syn.TripleQuotes && strings.HasPrefix(rest, strings.Repeat(string(c), 3)) {
					triple = true
					i += 2
				}
			case c == '(' || c == '[' || c == '{':
				stack = append(stack, c)
			case closers[c] != 0:
				if len(stack) == 0 || stack[len(stack)-1] != closers[c] {
					res.mismatched = true
					continue
				}
				stack = stack[:len(stack)-1]
			case isIdentStart(c):
				j := i
				for j < len(runes) && isIdentPart(runes[j]) {
					j++
				}
				if word := string(runes[i:j]); word == syn.ReturnKeyword {
					res.returns = append(res.returns, returnSite{line: li, depth: len(stack)})
				}
				last = runes[j-1]
				i = j - 1
			}
		}

		// Only backtick and triple-quoted strings span lines.
		if quote != 0 && !triple && quote != '`' {
			quote = 0
			res.unterminated = true
		}
		info.opener = syn.IndentBlocks && last == ':'
		res.lines[li] = info
	}

	res.unclosed = len(stack)
	if quote != 0 || inBlock {
		res.unterminated = true
	}
	return res
}

// lastCodeLine returns the index of the last line with code, or -1.
func (r scanResult) lastCodeLine() int {
	for i := len(r.lines) - 1; i >= 0; i-- {
		if r.lines[i].code {
			return i
		}
	}
	return -1
}

func (r scanResult) hasCode() bool {
	return r.lastCodeLine() >= 0
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isIdentStart(c rune) bool {
	return c == '_' || c == '$' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || unicode.IsDigit(c)
}

// indentUnit guesses one indentation level from a file's lines.
func indentUnit(lines []string, fallback string) string {
	smallest := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := leadingSpace(line)
		if ws == "" {
			continue
		}
		if ws[0] == '\t' {
			return "\t"
		}
		if n := len(ws) - len(strings.TrimLeft(ws, " ")); n > 0 && (smallest == 0 || n < smallest) {
			smallest = n
		}
	}
	if smallest == 0 {
		return fallback
	}
	return strings.Repeat(" ", smallest)
}
