package document

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// ReadPDF extracts plain text per page and the Info dictionary.
// Pages whose text cannot be extracted are kept as empty strings so page
// numbering stays aligned.
func ReadPDF(r io.ReaderAt, size int64) ([]string, PDFInfo, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, PDFInfo{}, fmt.Errorf("failed to open pdf: %w", err)
	}

	n := reader.NumPage()
	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = content
	}

	info := reader.Trailer().Key("Info")
	var meta PDFInfo
	if !info.IsNull() {
		meta = PDFInfo{
			Title:        info.Key("Title").Text(),
			Author:       info.Key("Author").Text(),
			CreationDate: info.Key("CreationDate").Text(),
		}
	}

	return pages, meta, nil
}
