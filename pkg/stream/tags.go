package stream

import "strings"

// Tag is an inline tagged region lifted out of the text stream, such as
// `<thought priority="high">…</thought>`. Attribute values are strings, or
// []string when a key repeats (in the order seen).
type Tag struct {
	Name        string
	Attributes  map[string]any
	Content     string
	SelfClosing bool
}

// Part is one ordered piece of extractor output: either user-visible
// content or a completed tag, never both.
type Part struct {
	Content string
	Tag     *Tag
}

// Extractor state machine states.
const (
	stText = iota
	stOpenLT
	stOpenName
	stOpenAttrs
	stAttrKey
	stAttrEq
	stAttrQuote
	stAttrValue
	stSelfClose
	stBody
	stBodyLT
	stCloseName
	stOrphan
)

type attrPair struct {
	key string
	val string
}

// Extractor splits an arbitrarily chunked text stream into user-visible
// content and inline tags. It tolerates tags broken at any byte position
// across chunks: bytes that cannot yet be classified stay pending until a
// disambiguating byte arrives or Flush is called.
//
// The grammar is deliberately loose. Tags are `<name[ attrs]/>` or
// `<name[ attrs]>body</name>` with double-quoted attribute values. Orphan
// closing tags are discarded; anything malformed degrades to content
// verbatim. Whitespace adjacent to a tag is dropped; whitespace inside
// content is preserved byte for byte.
//
// One Extractor serves one stream. Feed returns the parts completed by the
// chunk; Flush drains whatever is still pending and ends the stream.
type Extractor struct {
	state    int
	afterTag bool

	run   strings.Builder // content accumulated within the current Feed
	wsBuf strings.Builder // trailing whitespace run, not yet classified
	raw   strings.Builder // every byte of the construct since its '<'

	name      strings.Builder
	attrKey   strings.Builder
	attrVal   strings.Builder
	body      strings.Builder
	closeName strings.Builder
	attrs     []attrPair

	parts []Part
}

// NewExtractor creates an extractor positioned at start of stream.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Feed consumes one chunk and returns the parts it completed, in source
// order. The returned slice is valid until the next call.
func (x *Extractor) Feed(chunk string) []Part {
	x.parts = nil
	for i := 0; i < len(chunk); {
		if x.step(chunk[i]) {
			continue // byte pushed back for the new state
		}
		i++
	}
	x.flushRun()
	return x.parts
}

// Flush ends the stream: a pending construct is emitted as content
// verbatim, trailing whitespace after content is emitted, trailing
// whitespace after a tag is dropped.
func (x *Extractor) Flush() []Part {
	x.parts = nil
	if x.state != stText {
		x.beginContent()
		x.run.WriteString(x.raw.String())
		x.resetConstruct()
		x.state = stText
	} else if x.wsBuf.Len() > 0 && !x.afterTag {
		x.run.WriteString(x.wsBuf.String())
	}
	x.wsBuf.Reset()
	x.flushRun()
	return x.parts
}

// step consumes one byte; a true return means the byte must be reprocessed
// in the new state.
func (x *Extractor) step(c byte) bool {
	switch x.state {
	case stText:
		switch {
		case c == '<':
			x.raw.Reset()
			x.raw.WriteByte(c)
			x.state = stOpenLT
		case isSpace(c):
			x.wsBuf.WriteByte(c)
		default:
			x.beginContent()
			x.run.WriteByte(c)
		}

	case stOpenLT:
		switch {
		case c == '/':
			x.raw.WriteByte(c)
			x.state = stOrphan
		case isNameStart(c):
			x.raw.WriteByte(c)
			x.name.Reset()
			x.name.WriteByte(c)
			x.state = stOpenName
		default:
			return x.abort(c)
		}

	case stOpenName:
		switch {
		case isNameChar(c):
			x.raw.WriteByte(c)
			x.name.WriteByte(c)
		case isSpace(c):
			x.raw.WriteByte(c)
			x.state = stOpenAttrs
		case c == '/':
			x.raw.WriteByte(c)
			x.state = stSelfClose
		case c == '>':
			x.raw.WriteByte(c)
			x.body.Reset()
			x.state = stBody
		default:
			return x.abort(c)
		}

	case stOpenAttrs:
		switch {
		case isSpace(c):
			x.raw.WriteByte(c)
		case c == '/':
			x.raw.WriteByte(c)
			x.state = stSelfClose
		case c == '>':
			x.raw.WriteByte(c)
			x.body.Reset()
			x.state = stBody
		case isNameStart(c):
			x.raw.WriteByte(c)
			x.attrKey.Reset()
			x.attrKey.WriteByte(c)
			x.state = stAttrKey
		default:
			return x.abort(c)
		}

	case stAttrKey:
		switch {
		case isNameChar(c):
			x.raw.WriteByte(c)
			x.attrKey.WriteByte(c)
		case c == '=':
			x.raw.WriteByte(c)
			x.state = stAttrQuote
		case isSpace(c):
			x.raw.WriteByte(c)
			x.state = stAttrEq
		default:
			return x.abort(c)
		}

	case stAttrEq:
		switch {
		case isSpace(c):
			x.raw.WriteByte(c)
		case c == '=':
			x.raw.WriteByte(c)
			x.state = stAttrQuote
		default:
			return x.abort(c)
		}

	case stAttrQuote:
		switch {
		case isSpace(c):
			x.raw.WriteByte(c)
		case c == '"':
			x.raw.WriteByte(c)
			x.attrVal.Reset()
			x.state = stAttrValue
		default:
			return x.abort(c)
		}

	case stAttrValue:
		x.raw.WriteByte(c)
		if c == '"' {
			x.attrs = append(x.attrs, attrPair{key: x.attrKey.String(), val: x.attrVal.String()})
			x.state = stOpenAttrs
		} else {
			x.attrVal.WriteByte(c)
		}

	case stSelfClose:
		if c == '>' {
			x.raw.WriteByte(c)
			x.emitTag(&Tag{
				Name:        x.name.String(),
				Attributes:  x.attributes(),
				SelfClosing: true,
			})
			return false
		}
		return x.abort(c)

	case stBody:
		x.raw.WriteByte(c)
		if c == '<' {
			x.state = stBodyLT
		} else {
			x.body.WriteByte(c)
		}

	case stBodyLT:
		if c == '/' {
			x.raw.WriteByte(c)
			x.closeName.Reset()
			x.state = stCloseName
			return false
		}
		// Not a closing tag; the '<' was body text.
		x.body.WriteByte('<')
		x.state = stBody
		return true

	case stCloseName:
		switch {
		case isNameChar(c):
			x.raw.WriteByte(c)
			x.closeName.WriteByte(c)
		case c == '>':
			x.raw.WriteByte(c)
			if x.closeName.String() == x.name.String() {
				x.emitTag(&Tag{
					Name:       x.name.String(),
					Attributes: x.attributes(),
					Content:    x.body.String(),
				})
				return false
			}
			// Close for a tag that was never opened here: the inner
			// text survives as content, the markup does not.
			x.beginContent()
			x.run.WriteString(x.body.String())
			x.resetConstruct()
			x.state = stText
		default:
			// "</xy" turned out to be body text after all.
			x.body.WriteString("</")
			x.body.WriteString(x.closeName.String())
			x.state = stBody
			return true
		}

	case stOrphan:
		x.raw.WriteByte(c)
		if c == '>' {
			// Discarded without affecting whitespace classification:
			// an orphan close is invisible to the surrounding text.
			x.resetConstruct()
			x.state = stText
		}
	}
	return false
}

// abort gives up on the current construct: its bytes become content and
// scanning restarts at c.
func (x *Extractor) abort(c byte) bool {
	x.beginContent()
	x.run.WriteString(x.raw.String())
	x.resetConstruct()
	x.state = stText
	if c == '<' {
		return true
	}
	x.run.WriteByte(c)
	return false
}

// beginContent resolves the pending whitespace run the moment content
// materializes: dropped when it followed a tag, emitted otherwise.
func (x *Extractor) beginContent() {
	if x.wsBuf.Len() > 0 {
		if !x.afterTag {
			x.run.WriteString(x.wsBuf.String())
		}
		x.wsBuf.Reset()
	}
	x.afterTag = false
}

func (x *Extractor) emitTag(tag *Tag) {
	x.flushRun()
	x.parts = append(x.parts, Part{Tag: tag})
	x.wsBuf.Reset() // whitespace before a tag is dropped
	x.afterTag = true
	x.resetConstruct()
	x.state = stText
}

func (x *Extractor) flushRun() {
	if x.run.Len() > 0 {
		x.parts = append(x.parts, Part{Content: x.run.String()})
		x.run.Reset()
	}
}

func (x *Extractor) resetConstruct() {
	x.raw.Reset()
	x.name.Reset()
	x.attrKey.Reset()
	x.attrVal.Reset()
	x.body.Reset()
	x.closeName.Reset()
	x.attrs = nil
}

// attributes collapses the ordered pairs, turning repeated keys into
// string arrays.
func (x *Extractor) attributes() map[string]any {
	m := make(map[string]any, len(x.attrs))
	for _, p := range x.attrs {
		switch existing := m[p.key].(type) {
		case nil:
			m[p.key] = p.val
		case string:
			m[p.key] = []string{existing, p.val}
		case []string:
			m[p.key] = append(existing, p.val)
		}
	}
	return m
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9' || c == '-' || c == '.' || c == ':'
}
