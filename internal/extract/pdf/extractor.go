// Package pdf extracts plain text from PDF attachments.
package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	rpdf "rsc.io/pdf"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// collectLimit stops page walking once enough text is buffered; the caller
// truncates to the exact ceiling.
const collectLimit = 4 * harvest.MaxExtractedTextChars

// Extractor implements harvest.TextExtractor with rsc.io/pdf.
type Extractor struct {
	logger *zap.Logger
}

var _ harvest.TextExtractor = (*Extractor)(nil)

// New returns an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ExtractText returns the document text. ok is false for unparsable or
// text-free documents.
func (e *Extractor) ExtractText(data []byte, filename string) (string, bool) {
	text, err := extractPDFText(data)
	if err != nil {
		e.logger.Debug("pdf extraction failed", zap.String("filename", filename), zap.Error(err))
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", recovered)
		}
	}()
	if len(content) == 0 {
		return "", fmt.Errorf("empty document")
	}

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		builder.WriteString(pageText(page))
		builder.WriteString("\n")
		if builder.Len() >= collectLimit {
			break
		}
	}
	return builder.String(), nil
}

// tjSpaceThreshold is the TJ adjustment, in thousandths of an em, past which
// a gap reads as a word break.
const tjSpaceThreshold = 180

// pageText rebuilds the page text from its content stream operators. Spaces
// inside shown strings are kept as written, so word breaks survive fonts
// that carry no glyph widths.
func pageText(page rpdf.Page) string {
	w := &textWriter{page: page, encoders: map[string]rpdf.TextEncoding{}}
	contents := page.V.Key("Contents")
	streams := []rpdf.Value{contents}
	if contents.Kind() == rpdf.Array {
		streams = streams[:0]
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	}
	for _, strm := range streams {
		if strm.Kind() != rpdf.Stream {
			continue
		}
		rpdf.Interpret(strm, w.operator)
	}
	return w.b.String()
}

// textWriter tracks just enough text state to place line and word breaks.
type textWriter struct {
	page     rpdf.Page
	encoders map[string]rpdf.TextEncoding
	enc      rpdf.TextEncoding
	b        strings.Builder

	y, leading   float64
	lastY        float64
	hasText      bool
	forceBreak   bool
	pendingSpace bool
}

func (w *textWriter) operator(stk *rpdf.Stack, op string) {
	args := make([]rpdf.Value, stk.Len())
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = stk.Pop()
	}
	switch op {
	case "BT":
		w.y = 0
		w.pendingSpace = true
	case "Tf":
		if len(args) == 2 {
			w.enc = w.encoder(args[0].Name())
		}
	case "TL":
		if len(args) == 1 {
			w.leading = args[0].Float64()
		}
	case "Td", "TD":
		if len(args) == 2 {
			tx, ty := args[0].Float64(), args[1].Float64()
			w.y += ty
			if op == "TD" {
				w.leading = -ty
			}
			if tx != 0 {
				w.pendingSpace = true
			}
		}
	case "Tm":
		if len(args) == 6 {
			w.y = args[5].Float64()
			w.pendingSpace = true
		}
	case "T*":
		w.nextLine()
	case "Tj":
		if len(args) == 1 {
			w.show(args[0].RawString())
		}
	case "'":
		if len(args) == 1 {
			w.nextLine()
			w.show(args[0].RawString())
		}
	case "\"":
		if len(args) == 3 {
			w.nextLine()
			w.show(args[2].RawString())
		}
	case "TJ":
		if len(args) != 1 {
			return
		}
		arr := args[0]
		for i := 0; i < arr.Len(); i++ {
			v := arr.Index(i)
			if v.Kind() == rpdf.String {
				w.show(v.RawString())
			} else if v.Float64() < -tjSpaceThreshold {
				w.pendingSpace = true
			}
		}
	}
}

func (w *textWriter) encoder(name string) rpdf.TextEncoding {
	if enc, ok := w.encoders[name]; ok {
		return enc
	}
	enc := w.page.Font(name).Encoder()
	w.encoders[name] = enc
	return enc
}

func (w *textWriter) nextLine() {
	w.y -= w.leading
	w.forceBreak = true
}

func (w *textWriter) show(raw string) {
	s := raw
	if w.enc != nil {
		s = w.enc.Decode(raw)
	}
	if s == "" {
		return
	}
	if w.hasText {
		switch {
		case w.forceBreak || math.Abs(w.y-w.lastY) > 1:
			w.b.WriteString("\n")
		case w.pendingSpace && !strings.HasSuffix(w.b.String(), " ") && !strings.HasPrefix(s, " "):
			w.b.WriteString(" ")
		}
	}
	w.b.WriteString(s)
	w.lastY = w.y
	w.hasText = true
	w.forceBreak = false
	w.pendingSpace = false
}
