package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/quotecompare/backend/internal/domain"
)

// Reader turns uploaded documents into plain text. PDFs are read page by
// page; plain text uploads are passed through.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ExtractText returns the document text or an ErrUnreadableDocument.
func (r *Reader) ExtractText(ctx context.Context, doc domain.Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrUnreadableDocument)
	}

	if isPlainText(doc) {
		return string(doc.Data), nil
	}
	if !isPDF(doc) {
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrUnreadableDocument, filepath.Ext(doc.Filename))
	}

	text, err := readPDF(ctx, doc.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text found in PDF, it might be a scanned image", domain.ErrUnreadableDocument)
	}
	return text, nil
}

func readPDF(ctx context.Context, content []byte) (text string, err error) {
	// the pdf package panics on some malformed streams
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func isPDF(doc domain.Document) bool {
	if strings.EqualFold(filepath.Ext(doc.Filename), ".pdf") || strings.Contains(doc.ContentType, "pdf") {
		return true
	}
	return bytes.HasPrefix(doc.Data, []byte("%PDF-"))
}

func isPlainText(doc domain.Document) bool {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	return ext == ".txt" || strings.HasPrefix(doc.ContentType, "text/plain")
}
