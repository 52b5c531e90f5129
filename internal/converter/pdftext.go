package converter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"semantic-reconciliation-service/pkg/errors"
)

// ExtractPDFRows reads the text of a PDF locally and returns one row per
// non-blank text line as {"page": n, "line": text}. Row-ordered extraction is
// tried first; documents it cannot lay out fall back to plain text.
func ExtractPDFRows(data []byte) (rows []map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = errors.ConversionError(errors.CodeConversionFailed, "pdf text", fmt.Errorf("PDF reader crashed: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, "upload.pdf", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.ConversionError(errors.CodeConversionFailed, "pdf text", fmt.Errorf("PDF has no pages"))
	}

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		textRows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range textRows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				rows = append(rows, map[string]interface{}{"page": i, "line": line})
			}
		}
	}

	if len(rows) > 0 {
		return rows, nil
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, errors.ConversionError(errors.CodeConversionFailed, "pdf text", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return nil, errors.ConversionError(errors.CodeConversionFailed, "pdf text", err)
	}
	for _, line := range strings.Split(string(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, map[string]interface{}{"page": 0, "line": line})
		}
	}

	if len(rows) == 0 {
		return nil, errors.ConversionError(errors.CodeConversionFailed, "pdf text", fmt.Errorf("no text found in PDF"))
	}
	return rows, nil
}
