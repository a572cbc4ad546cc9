package documents

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

const pdfMimeType = "application/pdf"

// InspectPDF checks that content parses as a PDF and returns its page count.
func InspectPDF(content []byte) (pages int, err error) {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return 0, fmt.Errorf("%w: file is not a PDF", ErrInvalidInput)
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("%w: malformed PDF: %v", ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("%w: malformed PDF: %v", ErrInvalidInput, err)
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, fmt.Errorf("%w: PDF has no pages", ErrInvalidInput)
	}
	return pages, nil
}
