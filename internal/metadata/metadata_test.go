package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// minimalPDF builds a two page PDF with an Info dictionary and a correct
// cross reference table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Title (Quarterly Report) /Author (Jane Roe) /Subject (Finance) /Creator (Writer) /Producer (LibreOffice 7.5) /CreationDate (D:20240102030405Z) >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	doc, err := Read(bytes.NewReader(minimalPDF()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Title != "Quarterly Report" || doc.Author != "Jane Roe" {
		t.Fatalf("unexpected info: %+v", doc)
	}
	if doc.Producer != "LibreOffice 7.5" {
		t.Fatalf("producer = %q", doc.Producer)
	}
	if doc.Pages != 2 {
		t.Fatalf("pages = %d, want 2", doc.Pages)
	}
}

func TestRead_Garbage(t *testing.T) {
	if _, err := Read(strings.NewReader("%PDF-1.4\nnot really\n")); err == nil {
		t.Fatalf("expected error for broken pdf")
	}
}

func docServer(t *testing.T) *httptest.Server {
	t.Helper()
	pdf := minimalPDF()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(pdf)
		case "/fake.pdf":
			_, _ = w.Write([]byte("<html>not a pdf</html>"))
		case "/big.pdf":
			_, _ = w.Write(bytes.Repeat([]byte("%PDF-"), 1000))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestExtract(t *testing.T) {
	srv := docServer(t)
	defer srv.Close()

	e := NewExtractor(Options{MaxSize: 2048}, nil)
	urls := []string{
		srv.URL + "/report.pdf",
		srv.URL + "/missing.pdf",
		srv.URL + "/fake.pdf",
		srv.URL + "/big.pdf",
	}
	docs, err := e.Extract(context.Background(), urls)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(docs) != len(urls) {
		t.Fatalf("got %d documents", len(docs))
	}
	for i, d := range docs {
		if d.URL != urls[i] {
			t.Fatalf("document %d url = %q, want %q", i, d.URL, urls[i])
		}
	}
	if docs[0].Error != "" || docs[0].Title != "Quarterly Report" || docs[0].Size == 0 {
		t.Fatalf("report.pdf = %+v", docs[0])
	}
	if !strings.Contains(docs[1].Error, "404") {
		t.Fatalf("missing.pdf error = %q", docs[1].Error)
	}
	if docs[2].Error == "" {
		t.Fatalf("fake.pdf should fail")
	}
	if !strings.Contains(docs[3].Error, "exceeds") {
		t.Fatalf("big.pdf error = %q", docs[3].Error)
	}
}

func TestExtract_Limit(t *testing.T) {
	srv := docServer(t)
	defer srv.Close()

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = srv.URL + "/report.pdf"
	}
	docs, err := NewExtractor(Options{MaxDocuments: 3}, nil).Extract(context.Background(), urls)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
}

func TestExtract_Canceled(t *testing.T) {
	srv := docServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor(Options{}, nil).Extract(ctx, []string{srv.URL + "/report.pdf"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
