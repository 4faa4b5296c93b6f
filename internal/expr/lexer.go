package expr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokImag
	tokString
	tokOp
)

type token struct {
	typ  tokenType
	text string
	pos  int

	// literal payloads
	i int64
	f float64
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "if": true, "else": true,
	"in": true, "is": true, "True": true, "False": true, "None": true,
	"lambda": true, "for": true, "import": true, "def": true, "class": true,
	"return": true, "yield": true, "await": true, "async": true, "del": true,
	"while": true, "with": true, "try": true, "except": true, "finally": true,
	"raise": true, "pass": true, "break": true, "continue": true, "from": true,
	"global": true, "nonlocal": true, "assert": true, "elif": true, "as": true,
}

// Longest operators first so that "**" wins over "*".
var operators = []string{
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=",
	"+", "-", "*", "/", "%", "@", "&", "|", "^", "~",
	"<", ">", "(", ")", "[", "]", ",", ".",
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.tokens = append(lx.tokens, tok)
		if tok.typ == tokEOF {
			return lx.tokens, nil
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.src) {
		return token{typ: tokEOF, pos: lx.pos}, nil
	}

	start := lx.pos
	c := lx.src[lx.pos]

	switch {
	case isDigit(c) || (c == '.' && lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1])):
		return lx.number()
	case isNameStart(c):
		for lx.pos < len(lx.src) && isNameChar(lx.src[lx.pos]) {
			lx.pos++
		}
		word := lx.src[start:lx.pos]
		// string prefixes: r"..", b'..', f"..", rb"..", ...
		if lx.pos < len(lx.src) && (lx.src[lx.pos] == '"' || lx.src[lx.pos] == '\'') && isStringPrefix(word) {
			return lx.str(start)
		}
		if keywords[word] {
			return token{typ: tokKeyword, text: word, pos: start}, nil
		}
		return token{typ: tokName, text: word, pos: start}, nil
	case c == '"' || c == '\'':
		return lx.str(start)
	}

	for _, op := range operators {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			return token{typ: tokOp, text: op, pos: start}, nil
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid character %q", c)}
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			lx.pos++
		case '\\':
			// explicit line continuation
			if lx.pos+1 < len(lx.src) && (lx.src[lx.pos+1] == '\n' || lx.src[lx.pos+1] == '\r') {
				lx.pos += 2
				continue
			}
			return
		case '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		default:
			return
		}
	}
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	src := lx.src

	if src[lx.pos] == '0' && lx.pos+1 < len(src) && strings.ContainsRune("xXoObB", rune(src[lx.pos+1])) {
		lx.pos += 2
		for lx.pos < len(src) && (isHexDigit(src[lx.pos]) || src[lx.pos] == '_') {
			lx.pos++
		}
		return lx.intToken(start, src[start:lx.pos])
	}

	isFloat := false
	lx.digits()
	if lx.pos < len(src) && src[lx.pos] == '.' {
		isFloat = true
		lx.pos++
		lx.digits()
	}
	if lx.pos < len(src) && (src[lx.pos] == 'e' || src[lx.pos] == 'E') {
		save := lx.pos
		lx.pos++
		if lx.pos < len(src) && (src[lx.pos] == '+' || src[lx.pos] == '-') {
			lx.pos++
		}
		if lx.pos < len(src) && isDigit(src[lx.pos]) {
			isFloat = true
			lx.digits()
		} else {
			lx.pos = save
		}
	}

	text := src[start:lx.pos]
	if lx.pos < len(src) && (src[lx.pos] == 'j' || src[lx.pos] == 'J') {
		lx.pos++
		f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if err != nil {
			return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid imaginary literal %q", text)}
		}
		return token{typ: tokImag, text: src[start:lx.pos], pos: start, f: f}, lx.checkNumberEnd()
	}
	if isFloat {
		f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if err != nil && !isRangeErr(err) {
			return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid float literal %q", text)}
		}
		return token{typ: tokFloat, text: text, pos: start, f: f}, lx.checkNumberEnd()
	}
	if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0_") != "" {
		return token{}, &SyntaxError{Pos: start, Msg: "leading zeros in decimal integer literals are not permitted"}
	}
	return lx.intToken(start, text)
}

func (lx *lexer) digits() {
	for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
		lx.pos++
	}
}

// intToken parses an integer literal. Literals wider than 64 bits keep
// their low 64 bits, matching the wraparound arithmetic of the evaluator.
func (lx *lexer) intToken(start int, text string) (token, error) {
	if err := lx.checkNumberEnd(); err != nil {
		return token{}, err
	}
	v, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid integer literal %q", text)}
	}
	return token{typ: tokInt, text: text, pos: start, i: wrapBig(v)}, nil
}

func (lx *lexer) checkNumberEnd() error {
	if lx.pos < len(lx.src) && isNameChar(lx.src[lx.pos]) {
		return &SyntaxError{Pos: lx.pos, Msg: "invalid decimal literal"}
	}
	return nil
}

func (lx *lexer) str(start int) (token, error) {
	for lx.src[lx.pos] != '"' && lx.src[lx.pos] != '\'' {
		lx.pos++ // prefix
	}
	quote := lx.src[lx.pos]
	lx.pos++
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == quote:
			lx.pos++
			return token{typ: tokString, text: sb.String(), pos: start}, nil
		case c == '\\' && lx.pos+1 < len(lx.src):
			sb.WriteByte(lx.src[lx.pos+1])
			lx.pos += 2
		case c == '\n':
			return token{}, &SyntaxError{Pos: lx.pos, Msg: "unterminated string literal"}
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isNameChar(c byte) bool { return isNameStart(c) || isDigit(c) }

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "r", "b", "u", "f", "rb", "br", "fr", "rf":
		return true
	}
	return false
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

var mask64 = new(big.Int).SetUint64(^uint64(0))

// wrapBig reduces v to its low 64 bits as a two's-complement int64.
func wrapBig(v *big.Int) int64 {
	low := new(big.Int).And(v, mask64)
	return int64(low.Uint64())
}
