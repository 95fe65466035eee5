package pdf

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// ContentStreamExtractor decodes page content streams with pdfcpu and
// collects the operands of the text showing operators. It shares no code
// with the ledongthuc decoder, so files one of them chokes on often still
// yield text through the other.
type ContentStreamExtractor struct {
	logger logger.Logger
}

func NewContentStreamExtractor(log logger.Logger) *ContentStreamExtractor {
	return &ContentStreamExtractor{logger: log}
}

func (e *ContentStreamExtractor) Name() string { return "pdfcpu" }

func (e *ContentStreamExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("read pdf context: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return "", fmt.Errorf("validate pdf: %w", err)
	}

	pages := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			e.logger.Debug("Page content unavailable", logger.Int("page", pageNr), logger.Error(err))
			continue
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if pageText := ParseContentText(content); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n"), nil
}

type tokenKind int

const (
	tokOther tokenKind = iota
	tokString
	tokNumber
	tokArray
	tokOperator
)

type token struct {
	kind  tokenKind
	str   []byte
	num   float64
	op    string
	items []token
}

// ParseContentText returns the text shown by a decoded content stream,
// one line per text positioning step.
func ParseContentText(content []byte) string {
	s := &scanner{data: content}
	var (
		lines    []string
		line     strings.Builder
		operands []token
	)
	newline := func() {
		if l := strings.TrimSpace(line.String()); l != "" {
			lines = append(lines, l)
		}
		line.Reset()
	}
	lastString := func() []byte {
		for i := len(operands) - 1; i >= 0; i-- {
			if operands[i].kind == tokString {
				return operands[i].str
			}
		}
		return nil
	}

	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.op {
		case "Tj":
			line.WriteString(decodeText(lastString()))
		case "'", "\"":
			newline()
			line.WriteString(decodeText(lastString()))
		case "TJ":
			if n := len(operands); n > 0 && operands[n-1].kind == tokArray {
				for _, item := range operands[n-1].items {
					switch item.kind {
					case tokString:
						line.WriteString(decodeText(item.str))
					case tokNumber:
						// large negative kerning is an inter-word gap
						if item.num < -250 {
							line.WriteByte(' ')
						}
					}
				}
			}
		case "Td", "TD", "T*", "Tm", "ET":
			newline()
		case "ID":
			s.skipInlineImage()
		}
		operands = operands[:0]
	}
	newline()
	return strings.Join(lines, "\n")
}

type scanner struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *scanner) next() (token, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isWhite(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return token{kind: tokString, str: s.literalString()}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return token{kind: tokOther}, true
			}
			s.pos++
			return token{kind: tokString, str: s.hexString()}, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return token{kind: tokOther}, true
		case c == '[':
			s.pos++
			var items []token
			for {
				if s.pos < len(s.data) && s.peekNonWhite() == ']' {
					s.pos++
					break
				}
				item, ok := s.next()
				if !ok {
					break
				}
				items = append(items, item)
			}
			return token{kind: tokArray, items: items}, true
		case c == ']' || c == '{' || c == '}' || c == ')':
			s.pos++
			return token{kind: tokOther}, true
		case c == '/':
			s.pos++
			s.regular()
			return token{kind: tokOther}, true
		default:
			word := s.regular()
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, num: n}, true
			}
			return token{kind: tokOperator, op: word}, true
		}
	}
	return token{}, false
}

// peekNonWhite advances over whitespace and returns the next byte.
func (s *scanner) peekNonWhite() byte {
	for s.pos < len(s.data) && isWhite(s.data[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.data) {
		return 0
	}
	return s.data[s.pos]
}

func (s *scanner) regular() string {
	start := s.pos
	for s.pos < len(s.data) && !isWhite(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// lone delimiter we do not handle, consume it
		s.pos++
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *scanner) literalString() []byte {
	var out []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if s.pos >= len(s.data) {
				return out
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func (s *scanner) hexString() []byte {
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		if c := s.data[s.pos]; !isWhite(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++ // closing '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out, err := hex.DecodeString(string(digits))
	if err != nil {
		return nil
	}
	return out
}

// skipInlineImage jumps past the binary payload that follows ID.
func (s *scanner) skipInlineImage() {
	for s.pos+2 < len(s.data) {
		if isWhite(s.data[s.pos]) && s.data[s.pos+1] == 'E' && s.data[s.pos+2] == 'I' &&
			(s.pos+3 == len(s.data) || isWhite(s.data[s.pos+3])) {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

// decodeText maps string bytes to text: UTF-16BE when a byte order mark
// is present, otherwise single byte Latin-1 with control bytes dropped.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\t' || c == '\n':
			sb.WriteByte(' ')
		case c < 0x20 || c == 0x7f:
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}
