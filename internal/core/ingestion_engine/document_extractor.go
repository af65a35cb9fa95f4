package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/markdave123-py/docflow/internal/core"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	_ core.DocumentExtractor = (*DocconvExtractor)(nil)
	_ core.DocumentExtractor = (*PDFExtractor)(nil)
	_ core.DocumentExtractor = (*SpreadsheetExtractor)(nil)
	_ core.DocumentExtractor = (*CompositeExtractor)(nil)
)

// DocconvExtractor handles every format docconv knows (docx, odt, rtf, html, plain text...).
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)

	// docconv does not take a context; run it aside so cancellation is still honoured.
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			done <- result{err: fmt.Errorf("docconv %s: %w", contentType, err)}
			return
		}
		done <- result{body: res.Body}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

// PDFExtractor reads the text layer of a PDF.
type PDFExtractor struct{}

func (PDFExtractor) ExtractText(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// SpreadsheetExtractor flattens every sheet of an xlsx workbook into
// tab separated rows.
type SpreadsheetExtractor struct{}

func (SpreadsheetExtractor) ExtractText(ctx context.Context, data []byte, _ string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// CompositeExtractor routes by content type and falls back to docconv.
// A PDF without a text layer is retried through docconv, which can OCR
// scanned pages when built with its ocr tag.
type CompositeExtractor struct {
	byType   map[string]core.DocumentExtractor
	fallback core.DocumentExtractor
	logger   *slog.Logger
}

func NewCompositeExtractor(useReadability bool, logger *slog.Logger) *CompositeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeExtractor{
		byType: map[string]core.DocumentExtractor{
			mimePDF:  PDFExtractor{},
			mimeXLSX: SpreadsheetExtractor{},
		},
		fallback: NewDocconvExtractor(useReadability),
		logger:   logger.With("component", "extractor"),
	}
}

func (c *CompositeExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	mediaType := normalizeContentType(contentType)

	ex, ok := c.byType[mediaType]
	if !ok {
		return c.fallback.ExtractText(ctx, data, mediaType)
	}

	text, err := ex.ExtractText(ctx, data, mediaType)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if mediaType != mimePDF {
		return text, err
	}

	c.logger.Debug("Extractor: pdf text layer unusable, falling back to docconv", "error", err)
	fbText, fbErr := c.fallback.ExtractText(ctx, data, mediaType)
	if fbErr != nil {
		if err != nil {
			return "", err
		}
		return "", fbErr
	}
	return fbText, nil
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
