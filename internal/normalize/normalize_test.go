package normalize_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/jhunt/legisync/internal/normalize"
)

// filler pads a page body past the minimum-content threshold.
const filler = "A BILL TO BE ENTITLED AN ACT relating to public education funding, the foundation school program, and the duties of the agency; providing penalties."

func TestTextStripsTagsAndDecodesEntities(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style><script>alert("x")</script></head>
<body><p>Section 1 &amp; Section 2</p><p>See &#167; 42.001 &lt;as amended&gt;</p><div>` + filler + `</div></body></html>`

	got, ok := normalize.Text(html)
	require.True(t, ok)
	require.NotContains(t, got, "<p>")
	require.NotContains(t, got, "<body>")
	require.NotContains(t, got, "alert")
	require.NotContains(t, got, "color: red")
	require.Contains(t, got, "Section 1 & Section 2")
	require.Contains(t, got, "§ 42.001")
	require.Contains(t, got, "<as amended>")
}

func TestTextPreservesParagraphBreaks(t *testing.T) {
	html := "<p>First paragraph. " + filler + "</p><p>Second paragraph.</p>"
	got, ok := normalize.Text(html)
	require.True(t, ok)
	require.Contains(t, got, "paragraph.\nSecond")
}

func TestTextCollapsesWhitespace(t *testing.T) {
	html := "<p>" + filler + "</p>\n\n\n\n\n<p>word   with \t spaces</p>"
	got, ok := normalize.Text(html)
	require.True(t, ok)
	require.Contains(t, got, "word with spaces")
	require.NotContains(t, got, "\n\n\n")
}

func TestTextIdempotentOnCleanText(t *testing.T) {
	html := "<p>" + filler + "</p><p>" + filler + "</p>"
	once, ok := normalize.Text(html)
	require.True(t, ok)

	twice, ok := normalize.Text(once)
	require.True(t, ok)
	require.Equal(t, once, twice)
}

func TestTextRejectsErrorPages(t *testing.T) {
	_, ok := normalize.Text("<html><body>Website Error " + filler + "</body></html>")
	require.False(t, ok)

	_, ok = normalize.Text("<html><body>Page Not Found " + filler + "</body></html>")
	require.False(t, ok)
}

func TestTextRejectsShortContent(t *testing.T) {
	_, ok := normalize.Text("<html><body><p>Too short.</p></body></html>")
	require.False(t, ok)

	_, ok = normalize.Text("")
	require.False(t, ok)
}

func TestTextTruncatesLongContent(t *testing.T) {
	html := "<p>" + strings.Repeat("word ", 20000) + "</p>"
	got, ok := normalize.Text(html)
	require.True(t, ok)
	require.LessOrEqual(t, len(got), normalize.MaxContentLength)
	require.Greater(t, len(got), normalize.MaxContentLength-8)
}

func TestTextLimitsCountCharacters(t *testing.T) {
	// 60 characters of multibyte text is 120 bytes but still below the
	// minimum-content threshold.
	_, ok := normalize.Text("<p>" + strings.Repeat("§", 60) + "</p>")
	require.False(t, ok)

	got, ok := normalize.Text("<p>" + strings.Repeat("§", 60001) + "</p>")
	require.True(t, ok)
	require.Equal(t, normalize.MaxContentLength, utf8.RuneCountInString(got))
}

func TestEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "named", input: "Smith &amp; Jones", want: "Smith & Jones"},
		{name: "angle brackets", input: "&lt;b&gt;", want: "<b>"},
		{name: "decimal", input: "&#167; 1.01", want: "§ 1.01"},
		{name: "hex", input: "&#xA7; 1.01", want: "§ 1.01"},
		{name: "nbsp", input: "a&nbsp;b", want: "a b"},
		{name: "mdash", input: "Taxes&mdash;General", want: "Taxes—General"},
		{name: "escaped ampersand stays literal", input: "&amp;#167;", want: "&#167;"},
		{name: "unknown entity untouched", input: "&bogus;", want: "&bogus;"},
		{name: "no entities", input: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalize.Entities(tt.input))
		})
	}
}
