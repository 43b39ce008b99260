package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

// buildEPUB assembles a minimal archive from name -> content pairs.
func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>A Test Book</dc:title>
    <dc:creator>Jane Doe</dc:creator>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="missing/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="cover-img" href="cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="css"/>
  </spine>
</package>`

func testArchive(t *testing.T) []byte {
	return buildEPUB(t, map[string]string{
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/ch1.xhtml":        "<html><body><p>Chapter one text.</p></body></html>",
		// Declared as missing/ch2.xhtml in the manifest; only the basename exists.
		"OEBPS/ch2.xhtml": "<html><body><p>Chapter two text.</p></body></html>",
		"OEBPS/style.css": "p { margin: 0 }",
		"OEBPS/cover.jpg": "\xff\xd8jpegbytes",
	})
}

func TestOpen_MetadataAndSpine(t *testing.T) {
	book, err := Open(testArchive(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if book.Title != "A Test Book" {
		t.Errorf("title: got %q", book.Title)
	}
	if book.Author != "Jane Doe" {
		t.Errorf("author: got %q", book.Author)
	}
	// The CSS itemref is not a document and must not appear in the spine.
	if len(book.Spine) != 2 {
		t.Fatalf("expected 2 spine entries, got %d", len(book.Spine))
	}
	for i, entry := range book.Spine {
		if entry.Index != i {
			t.Errorf("spine entry %d has index %d", i, entry.Index)
		}
	}
}

func TestChapter_BasenameFallback(t *testing.T) {
	book, err := Open(testArchive(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// ch2's declared path does not exist; the basename search must find it.
	data, err := book.Chapter(book.Spine[1])
	if err != nil {
		t.Fatalf("Chapter fallback failed: %v", err)
	}
	if !strings.Contains(string(data), "Chapter two") {
		t.Errorf("unexpected chapter content: %s", data)
	}
}

func TestCover(t *testing.T) {
	book, err := Open(testArchive(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if cover := book.Cover(); !bytes.HasPrefix(cover, []byte("\xff\xd8")) {
		t.Errorf("expected jpeg cover bytes, got %q", cover)
	}
}

func TestOpen_MissingContainerFallsBackToOPFScan(t *testing.T) {
	data := buildEPUB(t, map[string]string{
		"OEBPS/content.opf": testOPF,
		"OEBPS/ch1.xhtml":   "<p>one</p>",
		"OEBPS/ch2.xhtml":   "<p>two</p>",
	})
	book, err := Open(data)
	if err != nil {
		t.Fatalf("Open without container.xml failed: %v", err)
	}
	if len(book.Spine) != 2 {
		t.Errorf("expected 2 spine entries, got %d", len(book.Spine))
	}
}

func TestOpen_NotAnArchive(t *testing.T) {
	if _, err := Open([]byte("not a zip")); !errors.Is(err, ErrInvalidEPUB) {
		t.Errorf("expected ErrInvalidEPUB, got %v", err)
	}
}
