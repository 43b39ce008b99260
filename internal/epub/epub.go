// Package epub opens packaged EPUB documents and resolves their manifest and
// spine into ordered chapter markup. It deliberately knows nothing about text
// extraction or enrichment; callers get bytes per spine entry plus book-level
// metadata.
package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidEPUB is returned when the archive is not a usable EPUB.
var ErrInvalidEPUB = errors.New("invalid epub")

const containerPath = "META-INF/container.xml"

// SpineEntry is one chapter-bearing document in reading order.
type SpineEntry struct {
	Index int    // Position in the spine (defines reading order)
	Href  string // Manifest href, relative to the OPF directory
}

// Book is an opened EPUB.
type Book struct {
	Title  string
	Author string
	Spine  []SpineEntry

	reader   *zip.Reader
	opfDir   string
	files    map[string]*zip.File // normalized path -> entry
	basename map[string]*zip.File // lowercased basename -> entry
	coverRef string               // manifest href of the cover image, if any
}

// Open reads an EPUB from raw container bytes.
func Open(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEPUB, err)
	}

	b := &Book{
		reader:   zr,
		files:    make(map[string]*zip.File, len(zr.File)),
		basename: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		b.files[name] = f
		b.basename[strings.ToLower(path.Base(name))] = f
	}

	opfPath, err := b.locateOPF()
	if err != nil {
		return nil, err
	}
	b.opfDir = path.Dir(opfPath)
	if b.opfDir == "." {
		b.opfDir = ""
	}

	opfData, err := b.readPath(opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPF: %w", err)
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}

	if len(pkg.Metadata.Titles) > 0 {
		b.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}
	if len(pkg.Metadata.Creators) > 0 {
		b.Author = strings.TrimSpace(pkg.Metadata.Creators[0])
	}

	byID := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		byID[item.ID] = item
		if strings.Contains(item.Properties, "cover-image") {
			b.coverRef = item.Href
		}
	}
	// EPUB 2 style cover: <meta name="cover" content="manifest-id"/>
	if b.coverRef == "" {
		for _, m := range pkg.Metadata.Metas {
			if strings.EqualFold(m.Name, "cover") {
				if item, ok := byID[m.Content]; ok {
					b.coverRef = item.Href
				}
			}
		}
	}

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok || item.Href == "" {
			continue
		}
		// Only document entries carry chapter text.
		if item.MediaType != "" && !strings.Contains(item.MediaType, "html") && !strings.Contains(item.MediaType, "xml") {
			continue
		}
		b.Spine = append(b.Spine, SpineEntry{Index: len(b.Spine), Href: item.Href})
	}

	if len(b.Spine) == 0 {
		return nil, fmt.Errorf("spine resolved to no documents: %w", ErrInvalidEPUB)
	}
	return b, nil
}

// locateOPF finds the OPF path via container.xml, falling back to scanning
// the archive for the first .opf entry.
func (b *Book) locateOPF() (string, error) {
	if f, ok := b.files[containerPath]; ok {
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read container.xml: %w", err)
		}
		return parseContainerXML(data)
	}

	for name := range b.files {
		if strings.HasSuffix(strings.ToLower(name), ".opf") {
			return name, nil
		}
	}
	return "", fmt.Errorf("no OPF found in archive: %w", ErrInvalidEPUB)
}

// Chapter returns the markup bytes for a spine entry. A manifest href whose
// declared path is missing from the archive falls back to a case-insensitive
// basename search before failing.
func (b *Book) Chapter(entry SpineEntry) ([]byte, error) {
	full := entry.Href
	if b.opfDir != "" {
		full = path.Join(b.opfDir, entry.Href)
	}
	data, err := b.readPath(full)
	if err == nil {
		return data, nil
	}

	if f, ok := b.basename[strings.ToLower(path.Base(entry.Href))]; ok {
		return readZipFile(f)
	}
	return nil, fmt.Errorf("chapter file %s not in archive: %w", entry.Href, err)
}

// Cover returns the cover image bytes, or nil if the book declares no cover.
func (b *Book) Cover() []byte {
	if b.coverRef == "" {
		return nil
	}
	full := b.coverRef
	if b.opfDir != "" {
		full = path.Join(b.opfDir, b.coverRef)
	}
	data, err := b.readPath(full)
	if err != nil {
		if f, ok := b.basename[strings.ToLower(path.Base(b.coverRef))]; ok {
			data, _ = readZipFile(f)
		}
	}
	return data
}

func (b *Book) readPath(p string) ([]byte, error) {
	f, ok := b.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrInvalidEPUB)
	}
	return readZipFile(f)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
