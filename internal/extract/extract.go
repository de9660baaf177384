// Package extract pulls plain text out of uploaded documents so that their
// content can ride along with a chat message.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"aiboost/internal/core"
)

// TruncationMarker is appended when extracted text exceeds the rune cap.
const TruncationMarker = "\n\n[document truncated]"

var supportedExtensions = []string{".txt", ".md", ".pdf"}

var (
	pdfiumOnce     sync.Once
	pdfiumInstance pdfium.Pdfium
	pdfiumErr      error
)

// pdfiumEngine starts the webassembly pdfium worker on first use. One worker
// is enough: uploads are parsed synchronously on the request path.
func pdfiumEngine() (pdfium.Pdfium, error) {
	pdfiumOnce.Do(func() {
		pool, err := webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  1,
			MaxTotal: 1,
		})
		if err != nil {
			pdfiumErr = fmt.Errorf("init pdfium: %w", err)
			return
		}
		pdfiumInstance, pdfiumErr = pool.GetInstance(30 * time.Second)
	})
	return pdfiumInstance, pdfiumErr
}

// FromUpload extracts text from an uploaded file by extension. Raw uploads
// are capped at 10 MB and extracted text at 50k runes.
func FromUpload(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("uploaded file %q is empty", name)
	}
	if len(data) > core.MaxUploadSizeBytes {
		return "", fmt.Errorf("uploaded file %q exceeds the %d MB limit", name, core.MaxUploadSizeBytes>>20)
	}

	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt", ".md":
		text, err = fromPlainText(name, data)
	case ".pdf":
		text, err = fromPDF(data)
	default:
		return "", fmt.Errorf("unsupported file type %q, supported: %s", ext, strings.Join(supportedExtensions, ", "))
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no extractable text in %q", name)
	}
	if utf8.RuneCountInString(text) > core.MaxExtractedRunes {
		runes := []rune(text)
		text = string(runes[:core.MaxExtractedRunes]) + TruncationMarker
	}
	return text, nil
}

func fromPlainText(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file %q is not valid UTF-8 text", name)
	}
	return string(data), nil
}

// fromPDF reads each page's text layer and joins pages with blank lines.
// Scanned PDFs without a text layer come back empty and are rejected by the
// caller's empty-text check.
func fromPDF(data []byte) (string, error) {
	engine, err := pdfiumEngine()
	if err != nil {
		return "", err
	}

	doc, err := engine.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		_, _ = engine.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
	}()

	pageCount, err := engine.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		return "", fmt.Errorf("count pdf pages: %w", err)
	}

	var pages []string
	for i := 0; i < pageCount.PageCount; i++ {
		pageText, err := engine.GetPageText(&requests.GetPageText{
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{Document: doc.Document, Index: i},
			},
		})
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i+1, err)
		}
		if trimmed := strings.TrimSpace(pageText.Text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// WrapForPrompt prepends the extracted document to a chat message as a
// fenced block so the model can tell document content from the question.
func WrapForPrompt(fileName, text, message string) string {
	var b strings.Builder
	b.WriteString("The user uploaded a document named ")
	b.WriteString(fmt.Sprintf("%q", fileName))
	b.WriteString(". Its content follows:\n\n```\n")
	b.WriteString(text)
	b.WriteString("\n```\n\n")
	if strings.TrimSpace(message) == "" {
		b.WriteString("Summarize this document.")
	} else {
		b.WriteString(message)
	}
	return b.String()
}
