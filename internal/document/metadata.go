package document

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Kind string

const (
	KindPDF  Kind = "pdf"
	KindJSON Kind = "json"
	KindPost Kind = "post"
)

var ErrMissingField = errors.New("missing required field")

// Metadata is the provenance shared by every chunk of one report.
// Date is RFC 3339 (or a bare day for JSON reports); empty means unknown.
type Metadata struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Date   string `json:"date"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// PDFInfo holds the raw values of a PDF Info dictionary.
type PDFInfo struct {
	Title        string
	Author       string
	CreationDate string
}

// Post is a scraped blog article.
type Post struct {
	URL     string
	Title   string
	Author  string
	Date    time.Time
	Content string
	Source  string
}

const pdfDateLayout = "20060102150405"

// ParsePDFDate normalizes a PDF CreationDate to RFC 3339 in local time.
// Offsets are cut at the first '+' or, failing that, the first '-'; a value
// that still does not parse is retried up to its 'Z'. Anything else is "".
func ParsePDFDate(raw string) string {
	if raw == "" {
		return ""
	}

	var date string
	if before, _, ok := strings.Cut(raw, "+"); ok {
		date = before
	} else {
		date, _, _ = strings.Cut(raw, "-")
	}
	date = strings.ReplaceAll(date, "D:", "")

	if t, err := time.ParseInLocation(pdfDateLayout, date, time.Local); err == nil {
		return t.Format(time.RFC3339)
	}

	date, _, _ = strings.Cut(date, "Z")
	if t, err := time.ParseInLocation(pdfDateLayout, date, time.Local); err == nil {
		return t.Format(time.RFC3339)
	}
	return ""
}

func ExtractPDF(info PDFInfo, fileName string) Metadata {
	return Metadata{
		Title:  strings.ReplaceAll(info.Title, " ", "_"),
		Author: info.Author,
		Date:   ParsePDFDate(info.CreationDate),
		Source: fileName,
	}
}

func ExtractJSON(r JSONReport) Metadata {
	day, _, _ := strings.Cut(r.Date, "T")
	return Metadata{
		Title:  r.Title,
		Author: r.Author,
		Date:   day,
		URL:    r.URL,
		Source: r.Source,
	}
}

func ExtractPost(p Post) Metadata {
	m := Metadata{
		Title:  p.Title,
		Author: p.Author,
		URL:    p.URL,
		Source: p.Source,
	}
	if !p.Date.IsZero() {
		m.Date = p.Date.Format(time.RFC3339)
	}
	return m
}

var multiSpace = regexp.MustCompile(` +`)

// Decorate prefixes every chunk with a Title/Author/Date header.
// fallbackTitle is shown when the metadata has no title.
func Decorate(chunks []string, m Metadata, fallbackTitle string) []string {
	title := m.Title
	if title == "" {
		title = fallbackTitle
	}
	day, _, _ := strings.Cut(m.Date, "T")

	out := make([]string, len(chunks))
	for i, c := range chunks {
		header := fmt.Sprintf("Title: %s\nAuthor: %s\nDate: %s\n%s", title, m.Author, day, c)
		out[i] = multiSpace.ReplaceAllString(header, " ")
	}
	return out
}
