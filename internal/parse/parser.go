// Package parse turns bill-history XML documents into structured records.
package parse

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/normalize"
)

// Field caps, in characters, applied before a ParsedBill is returned.
const (
	maxDescriptionLength = 2000
	maxLastActionLength  = 500
)

var (
	ErrEmptyDocument   = errors.New("empty bill-history document")
	ErrNotBillHistory  = errors.New("document is not a bill history")
	ErrMissingBillID   = errors.New("document has no bill identifier")
	ErrUnknownBillType = errors.New("unrecognized bill type")
	ErrMissingCaption  = errors.New("document has no caption")
)

// billIDPattern pulls the type and number out of the bill attribute, which
// is free text of the form "<session> <TYPE> <NUMBER>".
var billIDPattern = regexp.MustCompile(`(?i)\b(HB|SB|HJR|SJR|HCR|SCR)\s*(\d+)\b`)

// leadingDatePattern matches a M/D/YYYY or MM/DD/YYYY token at the start of
// a free-text field.
var leadingDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)

// subjectCodePattern matches the trailing parenthetical code on a subject
// entry, e.g. "Education (E0001)".
var subjectCodePattern = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// xmlEntities supplements the decoder with the named entities that appear in
// source documents; encoding/xml only knows the five XML predefined ones.
var xmlEntities = map[string]string{
	"nbsp":   " ",
	"mdash":  "—",
	"ndash":  "–",
	"sect":   "§",
	"copy":   "©",
	"reg":    "®",
	"deg":    "°",
	"frac12": "½",
	"frac14": "¼",
	"frac34": "¾",
	"bull":   "•",
	"hellip": "…",
	"rsquo":  "’",
	"lsquo":  "‘",
	"rdquo":  "”",
	"ldquo":  "“",
}

type xmlAction struct {
	Date        string `xml:"date"`
	Description string `xml:"description"`
}

type xmlCommittee struct {
	Chamber string `xml:"chamber,attr"`
	Name    string `xml:"name,attr"`
	Status  string `xml:"status,attr"`
}

type xmlBillHistory struct {
	XMLName    xml.Name       `xml:"billhistory"`
	Bill       string         `xml:"bill,attr"`
	LastUpdate string         `xml:"lastUpdate,attr"`
	Caption    string         `xml:"caption"`
	Authors    string         `xml:"authors"`
	Coauthors  string         `xml:"coauthors"`
	Sponsors   string         `xml:"sponsors"`
	Cosponsors string         `xml:"cosponsors"`
	Subjects   []string       `xml:"subjects>subject"`
	Actions    []xmlAction    `xml:"actions>action"`
	Committees []xmlCommittee `xml:"committees>committee"`
	LastAction string         `xml:"lastaction"`
	TextURL    string         `xml:"billtext>weburl"`
}

// Parser parses bill-history documents.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses one bill-history document into a ParsedBill, or rejects it
// as invalid.
func (p *Parser) Parse(content []byte) (*model.ParsedBill, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyDocument
	}
	if !bytes.Contains(content, []byte("<billhistory")) {
		return nil, ErrNotBillHistory
	}

	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Strict = false
	decoder.Entity = xmlEntities

	var doc xmlBillHistory
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode bill history: %w", err)
	}

	billType, billNumber, err := parseBillID(doc.Bill)
	if err != nil {
		return nil, err
	}

	caption := strings.TrimSpace(normalize.Entities(doc.Caption))
	if caption == "" {
		return nil, ErrMissingCaption
	}

	bill := &model.ParsedBill{
		BillType:    billType,
		BillNumber:  billNumber,
		Description: truncate(caption, maxDescriptionLength),
		Authors:     splitNames(doc.Authors),
		Coauthors:   splitNames(doc.Coauthors),
		Sponsors:    splitNames(doc.Sponsors),
		Cosponsors:  splitNames(doc.Cosponsors),
		Subjects:    cleanSubjects(doc.Subjects),
		LastAction:  truncate(strings.TrimSpace(normalize.Entities(doc.LastAction)), maxLastActionLength),
	}

	for _, a := range doc.Actions {
		desc := strings.TrimSpace(normalize.Entities(a.Description))
		if desc == "" {
			continue
		}
		bill.Actions = append(bill.Actions, model.Action{
			Date:        strings.TrimSpace(a.Date),
			Description: desc,
		})
	}

	for _, c := range doc.Committees {
		name := strings.TrimSpace(normalize.Entities(c.Name))
		if name == "" {
			continue
		}
		bill.Committees = append(bill.Committees, model.Committee{
			Chamber: strings.TrimSpace(c.Chamber),
			Name:    name,
			Status:  strings.TrimSpace(c.Status),
		})
	}

	bill.LastActionDate = leadingDate(bill.LastAction)
	bill.LastUpdate = leadingDate(strings.TrimSpace(doc.LastUpdate))
	bill.Status = deriveStatus(bill.Actions, bill.Committees)

	if url := strings.TrimSpace(doc.TextURL); strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		bill.TextURL = url
	}

	return bill, nil
}

// parseBillID extracts the type and number from the bill attribute.
func parseBillID(attr string) (string, int, error) {
	if strings.TrimSpace(attr) == "" {
		return "", 0, ErrMissingBillID
	}
	m := billIDPattern.FindStringSubmatch(attr)
	if m == nil {
		return "", 0, ErrUnknownBillType
	}
	billType := strings.ToUpper(m[1])
	if !model.ValidBillType(billType) {
		return "", 0, ErrUnknownBillType
	}
	number, err := strconv.Atoi(m[2])
	if err != nil || number <= 0 {
		return "", 0, ErrMissingBillID
	}
	return billType, number, nil
}

// splitNames parses a pipe-delimited name list, trimming entries and
// dropping empties.
func splitNames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(normalize.Entities(raw), "|") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// cleanSubjects strips the trailing parenthetical code from each subject.
func cleanSubjects(raw []string) []string {
	var subjects []string
	for _, s := range raw {
		s = subjectCodePattern.ReplaceAllString(normalize.Entities(s), "")
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			subjects = append(subjects, trimmed)
		}
	}
	return subjects
}

// leadingDate parses a date token at the head of a free-text field.
func leadingDate(s string) *time.Time {
	m := leadingDatePattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
