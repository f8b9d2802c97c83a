package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect feeds every chunk, flushes, and splits the output into the
// concatenated content stream and the tag stream.
func collect(chunks ...string) (string, []*Tag) {
	x := NewExtractor()
	var content strings.Builder
	var tags []*Tag
	consume := func(parts []Part) {
		for _, p := range parts {
			if p.Tag != nil {
				tags = append(tags, p.Tag)
			} else {
				content.WriteString(p.Content)
			}
		}
	}
	for _, c := range chunks {
		consume(x.Feed(c))
	}
	consume(x.Flush())
	return content.String(), tags
}

// explode splits the input into one-byte chunks, the worst-case boundary
// placement.
func explode(s string) []string {
	chunks := make([]string, 0, len(s))
	for i := range s {
		chunks = append(chunks, s[i:i+1])
	}
	return chunks
}

func TestExtractorPlainContent(t *testing.T) {
	t.Run("passes text through untouched", func(t *testing.T) {
		content, tags := collect("just some text, no tags at all")
		assert.Equal(t, "just some text, no tags at all", content)
		assert.Empty(t, tags)
	})

	t.Run("preserves internal whitespace byte for byte", func(t *testing.T) {
		content, _ := collect("a  b\t\tc\n\nd")
		assert.Equal(t, "a  b\t\tc\n\nd", content)
	})

	t.Run("keeps trailing whitespace after content", func(t *testing.T) {
		content, _ := collect("answer  \n")
		assert.Equal(t, "answer  \n", content)
	})

	t.Run("keeps leading whitespace before content", func(t *testing.T) {
		content, _ := collect("  indented")
		assert.Equal(t, "  indented", content)
	})
}

func TestExtractorPairedTags(t *testing.T) {
	t.Run("extracts a tag split across chunks", func(t *testing.T) {
		x := NewExtractor()
		var got [][]Part
		for _, chunk := range []string{"Hello ", "<thou", "ght>analyzing...", "</thought>", " The answer is 42."} {
			got = append(got, x.Feed(chunk))
		}
		flush := x.Flush()

		require.Len(t, got[0], 1)
		assert.Equal(t, "Hello", got[0][0].Content, "whitespace before the tag is dropped")
		assert.Empty(t, got[1])
		assert.Empty(t, got[2])

		require.Len(t, got[3], 1)
		tag := got[3][0].Tag
		require.NotNil(t, tag)
		assert.Equal(t, "thought", tag.Name)
		assert.Equal(t, "analyzing...", tag.Content)
		assert.Empty(t, tag.Attributes)
		assert.False(t, tag.SelfClosing)

		require.Len(t, got[4], 1)
		assert.Equal(t, "The answer is 42.", got[4][0].Content, "whitespace after the tag is dropped")
		assert.Empty(t, flush)
	})

	t.Run("survives one-byte chunks", func(t *testing.T) {
		content, tags := collect(explode("before <t a=\"1\">inner text</t> after")...)
		assert.Equal(t, "beforeafter", content)
		require.Len(t, tags, 1)
		assert.Equal(t, "t", tags[0].Name)
		assert.Equal(t, "inner text", tags[0].Content)
		assert.Equal(t, map[string]any{"a": "1"}, tags[0].Attributes)
	})

	t.Run("body whitespace is preserved", func(t *testing.T) {
		_, tags := collect("<t>  padded\n body  </t>")
		require.Len(t, tags, 1)
		assert.Equal(t, "  padded\n body  ", tags[0].Content)
	})

	t.Run("body may contain lone angle brackets", func(t *testing.T) {
		_, tags := collect("<t>a < b and c<d</t>")
		require.Len(t, tags, 1)
		assert.Equal(t, "a < b and c<d", tags[0].Content)
	})

	t.Run("false closing prefix folds back into the body", func(t *testing.T) {
		_, tags := collect("<t>a </not!> b</t>")
		require.Len(t, tags, 1)
		assert.Equal(t, "a </not!> b", tags[0].Content)
	})

	t.Run("mismatched close keeps the inner text as content", func(t *testing.T) {
		content, tags := collect("x <a>inner</b> y")
		assert.Equal(t, "x inner y", content)
		assert.Empty(t, tags)
	})
}

func TestExtractorSelfClosing(t *testing.T) {
	t.Run("with and without the space", func(t *testing.T) {
		content, tags := collect("<br/>mid<hr />")
		assert.Equal(t, "mid", content)
		require.Len(t, tags, 2)
		assert.Equal(t, "br", tags[0].Name)
		assert.True(t, tags[0].SelfClosing)
		assert.Empty(t, tags[0].Content)
		assert.Equal(t, "hr", tags[1].Name)
		assert.True(t, tags[1].SelfClosing)
	})

	t.Run("whitespace between adjacent tags is dropped", func(t *testing.T) {
		x := NewExtractor()
		var parts []Part
		for _, chunk := range []string{"<t1/>", "   ", "<t2/>", "   ", "content"} {
			parts = append(parts, x.Feed(chunk)...)
		}
		parts = append(parts, x.Flush()...)

		require.Len(t, parts, 3)
		assert.Equal(t, "t1", parts[0].Tag.Name)
		assert.Equal(t, "t2", parts[1].Tag.Name)
		assert.Equal(t, "content", parts[2].Content)
	})

	t.Run("trailing whitespace after a tag is dropped at stream end", func(t *testing.T) {
		content, tags := collect("<done/>  \n")
		assert.Empty(t, content)
		require.Len(t, tags, 1)
	})
}

func TestExtractorAttributes(t *testing.T) {
	t.Run("parses quoted key-value pairs", func(t *testing.T) {
		_, tags := collect(`<step id="1" label="fetch data">run</step>`)
		require.Len(t, tags, 1)
		assert.Equal(t, map[string]any{"id": "1", "label": "fetch data"}, tags[0].Attributes)
	})

	t.Run("duplicate keys collapse into an array in order", func(t *testing.T) {
		_, tags := collect(`<t k="a" k="b" k="c"/>`)
		require.Len(t, tags, 1)
		assert.Equal(t, map[string]any{"k": []string{"a", "b", "c"}}, tags[0].Attributes)
	})

	t.Run("values keep special characters", func(t *testing.T) {
		_, tags := collect(`<t expr="a < b > c"/>`)
		require.Len(t, tags, 1)
		assert.Equal(t, map[string]any{"expr": "a < b > c"}, tags[0].Attributes)
	})

	t.Run("spaces around the equals sign are tolerated", func(t *testing.T) {
		_, tags := collect(`<t k = "v"/>`)
		require.Len(t, tags, 1)
		assert.Equal(t, map[string]any{"k": "v"}, tags[0].Attributes)
	})
}

func TestExtractorOrphanClose(t *testing.T) {
	t.Run("is discarded and keeps the surrounding text", func(t *testing.T) {
		content, tags := collect("a </ghost> b")
		assert.Equal(t, "a  b", content, "whitespace around the orphan is content")
		assert.Empty(t, tags)
	})

	t.Run("at start of stream", func(t *testing.T) {
		content, tags := collect("</x>text")
		assert.Equal(t, "text", content)
		assert.Empty(t, tags)
	})
}

func TestExtractorMalformed(t *testing.T) {
	t.Run("non-tag angle brackets are content", func(t *testing.T) {
		content, tags := collect("1 < 2 and 3 > 2")
		assert.Equal(t, "1 < 2 and 3 > 2", content)
		assert.Empty(t, tags)
	})

	t.Run("double open angle restarts tag detection", func(t *testing.T) {
		content, tags := collect("x <<t/>")
		assert.Equal(t, "x <", content)
		require.Len(t, tags, 1)
		assert.Equal(t, "t", tags[0].Name)
	})

	t.Run("bad attribute syntax degrades to content", func(t *testing.T) {
		content, tags := collect(`<t k=unquoted>`)
		assert.Equal(t, `<t k=unquoted>`, content)
		assert.Empty(t, tags)
	})

	t.Run("incomplete tag at stream end is content verbatim", func(t *testing.T) {
		content, tags := collect("text <unfin")
		assert.Equal(t, "text <unfin", content)
		assert.Empty(t, tags)
	})

	t.Run("unclosed body at stream end is content verbatim", func(t *testing.T) {
		content, tags := collect("<t>body never ends")
		assert.Equal(t, "<t>body never ends", content)
		assert.Empty(t, tags)
	})

	t.Run("unterminated attribute value at stream end", func(t *testing.T) {
		content, _ := collect(`<t k="no close`)
		assert.Equal(t, `<t k="no close`, content)
	})
}

func TestExtractorReconstruction(t *testing.T) {
	// Concatenated content plus re-rendered tags reconstructs the input,
	// modulo whitespace trimmed at tag boundaries.
	inputs := []string{
		"plain text only",
		"a<t>b</t>c",
		"<x/><y/>",
		"pre <tag attr=\"v\">body</tag> post",
		"broken <half",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			x := NewExtractor()
			var rebuilt strings.Builder
			consume := func(parts []Part) {
				for _, p := range parts {
					if p.Tag != nil {
						rebuilt.WriteString(renderTag(p.Tag))
					} else {
						rebuilt.WriteString(p.Content)
					}
				}
			}
			for _, chunk := range explode(input) {
				consume(x.Feed(chunk))
			}
			consume(x.Flush())

			stripped := strings.Join(strings.Fields(input), "")
			got := strings.Join(strings.Fields(rebuilt.String()), "")
			assert.Equal(t, stripped, got)
		})
	}
}

func renderTag(tag *Tag) string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(tag.Name)
	for k, v := range tag.Attributes {
		switch val := v.(type) {
		case string:
			sb.WriteString(` ` + k + `="` + val + `"`)
		case []string:
			for _, item := range val {
				sb.WriteString(` ` + k + `="` + item + `"`)
			}
		}
	}
	if tag.SelfClosing {
		sb.WriteString("/>")
		return sb.String()
	}
	sb.WriteByte('>')
	sb.WriteString(tag.Content)
	sb.WriteString("</" + tag.Name + ">")
	return sb.String()
}
