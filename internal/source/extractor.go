package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"congress-digest/internal/logger"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for input that does not start with a PDF header.
var ErrNotPDF = errors.New("document is not a PDF")

// minQuality is the lowest text quality accepted from any method.
const minQuality = 0.3

type extractMethod struct {
	name    string
	extract func(context.Context, []byte) (string, error)
}

// PDFExtractor extracts plain text with pdftotext when it is installed and
// falls back to a pure Go reader.
type PDFExtractor struct {
	methods []extractMethod
	timeout time.Duration
	log     *slog.Logger
}

func NewPDFExtractor() *PDFExtractor {
	e := &PDFExtractor{
		timeout: 2 * time.Minute,
		log:     logger.With("component", "pdf_extractor"),
	}
	if hasBinary("pdftotext") {
		e.methods = append(e.methods, extractMethod{"poppler", e.extractWithPoppler})
	}
	e.methods = append(e.methods, extractMethod{"go-pdf", extractWithGoPDF})
	return e
}

// Extract returns the text of the PDF in data, trying each method in order
// and keeping the first result of acceptable quality.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", ErrNotPDF
	}

	var (
		lastErr  error
		best     string
		bestQual = -1.0
	)
	for _, m := range e.methods {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		text, err := m.extract(ctx, data)
		if err != nil {
			e.log.Warn("pdf extraction method failed", "method", m.name, "error", err)
			lastErr = err
			continue
		}

		quality := textQuality(text)
		e.log.Debug("pdf extracted",
			"method", m.name,
			"chars", len(text),
			"quality", quality,
			"elapsed", time.Since(start).String(),
		)
		if quality >= 0.7 {
			return text, nil
		}
		if quality > bestQual {
			best, bestQual = text, quality
		}
	}

	if bestQual >= minQuality {
		return best, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("all extraction methods failed: %w", lastErr)
	}
	if strings.TrimSpace(best) == "" {
		// A scanned or image-only PDF: no text, but not an error.
		return "", nil
	}
	return "", fmt.Errorf("extracted text quality too low (%.2f)", bestQual)
}

func (e *PDFExtractor) extractWithPoppler(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func extractWithGoPDF(_ context.Context, data []byte) (text string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// textQuality scores extracted text between 0 and 1 by how much of it is
// readable; replacement characters and control bytes count against it.
func textQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var total, alnum, printable, corrupted int
	for _, r := range text {
		total++
		switch {
		case r == '\uFFFD':
			corrupted++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alnum++
			printable++
		case r == '\n' || r == '\t' || r == '\r' || r >= 32:
			printable++
		default:
			corrupted++
		}
	}

	score := float64(printable)/float64(total)*0.6 + min(float64(alnum)/float64(total), 0.4)
	score -= float64(corrupted) / float64(total) * 2
	return max(0, min(1, score))
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
