// Package normalize converts raw bill-text HTML into clean plain text for
// storage. Every function here is pure: identical input always yields
// identical output.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxContentLength caps stored bill text, counted in characters.
const MaxContentLength = 50000

// minContentLength is the shortest cleaned text accepted as real content, in
// characters; anything at or below it is treated as a placeholder page.
const minContentLength = 100

var errorPageSignatures = []string{
	"Website Error",
	"Page Not Found",
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	stylePattern  = regexp.MustCompile(`(?is)<style\b.*?</style>`)

	// Line-break and block-level closing tags become newlines before the
	// remaining tags are stripped, so paragraph structure survives.
	breakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</h[1-6]>|</li>|</tr>`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)

	decimalEntity = regexp.MustCompile(`&#(\d+);`)
	hexEntity     = regexp.MustCompile(`&#[xX]([0-9a-fA-F]+);`)

	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
	spacedNewline   = regexp.MustCompile(` ?\n ?`)
)

// namedEntities covers the named entities seen in source documents. Numeric
// entities are decoded generically.
var namedEntities = map[string]string{
	"&nbsp;":   " ",
	"&amp;":    "&",
	"&lt;":     "<",
	"&gt;":     ">",
	"&quot;":   `"`,
	"&apos;":   "'",
	"&mdash;":  "—",
	"&ndash;":  "–",
	"&sect;":   "§",
	"&copy;":   "©",
	"&reg;":    "®",
	"&deg;":    "°",
	"&frac12;": "½",
	"&frac14;": "¼",
	"&frac34;": "¾",
	"&bull;":   "•",
	"&hellip;": "…",
	"&lsquo;":  "‘",
	"&rsquo;":  "’",
	"&ldquo;":  "“",
	"&rdquo;":  "”",
}

// Text converts a bill-text HTML page into clean plain text. It returns
// ok=false when the page matches a known error-page signature or the cleaned
// result is too short to be real content.
func Text(raw string) (string, bool) {
	for _, sig := range errorPageSignatures {
		if strings.Contains(raw, sig) {
			return "", false
		}
	}

	text := scriptPattern.ReplaceAllString(raw, "")
	text = stylePattern.ReplaceAllString(text, "")
	text = breakPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = Entities(text)

	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spacedNewline.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	count := utf8.RuneCountInString(text)
	if count <= minContentLength {
		return "", false
	}
	if count > MaxContentLength {
		text = string([]rune(text)[:MaxContentLength])
	}
	return text, true
}

// Entities decodes HTML entities: numeric references in decimal and hex,
// then the named table above. Numeric references go first so that an escaped
// ampersand is never decoded into a fresh entity.
func Entities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	s = decimalEntity.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.Atoi(m[2 : len(m)-1])
		if err != nil || code <= 0 || code > 0x10ffff {
			return m
		}
		return string(rune(code))
	})
	s = hexEntity.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.ParseInt(m[3:len(m)-1], 16, 32)
		if err != nil || code <= 0 || code > 0x10ffff {
			return m
		}
		return string(rune(code))
	})
	for entity, replacement := range namedEntities {
		s = strings.ReplaceAll(s, entity, replacement)
	}
	return s
}
