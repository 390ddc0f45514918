package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal uncompressed PDF with one text line per page.
func buildPDF(pages []string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	n := len(pages)
	fontID := 3 + 2*n
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, 4+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtract_Pages(t *testing.T) {
	data := buildPDF([]string{"Reset the device.", "Hold the power button."})
	text, pages, err := NewPDFExtractor(nil, nil).Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if pages != 2 {
		t.Errorf("expected 2 pages, got %d", pages)
	}
	if !strings.Contains(text, "Reset the device.") || !strings.Contains(text, "Hold the power button.") {
		t.Errorf("missing page text: %q", text)
	}
	if strings.Index(text, "Reset") > strings.Index(text, "Hold") {
		t.Errorf("pages out of order: %q", text)
	}
	if !strings.HasSuffix(text, "\n") {
		t.Errorf("each page should end with a newline: %q", text)
	}
}

func TestExtract_Progress(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("Page %d.", i+1)
	}
	var reports []int
	e := NewPDFExtractor(nil, func(done, total int) {
		if total != 12 {
			t.Errorf("unexpected total %d", total)
		}
		reports = append(reports, done)
	})
	if _, _, err := e.Extract(context.Background(), buildPDF(texts)); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(reports) != 2 || reports[0] != 10 || reports[1] != 12 {
		t.Errorf("expected progress at 10 and 12, got %v", reports)
	}
}

func TestExtract_Invalid(t *testing.T) {
	e := NewPDFExtractor(nil, nil)
	if _, _, err := e.Extract(context.Background(), nil); err == nil {
		t.Error("empty input should fail")
	}
	if _, _, err := e.Extract(context.Background(), []byte("this is not a pdf")); err == nil {
		t.Error("garbage input should fail")
	}
}

func TestExtract_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewPDFExtractor(nil, nil).Extract(ctx, buildPDF([]string{"x."})); err == nil {
		t.Error("canceled context should fail")
	}
}
