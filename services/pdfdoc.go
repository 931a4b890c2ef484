package services

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"

	"github.com/gen2brain/go-fitz"
	ltpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"citrine-sage-backend/internal/logger"
)

// Document is a paginated source the extractor can classify page by page.
type Document interface {
	NumPages() int
	Page(i int) Page
	Close() error
}

// Page offers the three views the classifier needs: the digital text
// layer, a full-page raster render, and the embedded raster sub-images.
type Page interface {
	Text() (string, error)
	Render(scale float64) (image.Image, error)
	Images() ([]image.Image, error)
}

// DocumentOpener opens a PDF at a filesystem path.
type DocumentOpener func(path string) (Document, error)

// pdfDocument combines three PDF libraries: ledongthuc/pdf for the
// digital text layer, go-fitz (MuPDF) for page rasterization and pdfcpu
// for embedded image enumeration.
type pdfDocument struct {
	path   string
	file   *os.File
	reader *ltpdf.Reader
	fz     *fitz.Document
}

// OpenPDF opens a PDF document for hybrid extraction.
func OpenPDF(path string) (Document, error) {
	fz, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}

	file, reader, err := ltpdf.Open(path)
	if err != nil {
		// The raster path still works without a readable text layer;
		// pages then classify as scanned.
		logger.Warn("No readable text layer", "path", path, "error", err)
		file, reader = nil, nil
	}

	return &pdfDocument{
		path:   path,
		file:   file,
		reader: reader,
		fz:     fz,
	}, nil
}

func (d *pdfDocument) NumPages() int {
	return d.fz.NumPage()
}

func (d *pdfDocument) Page(i int) Page {
	return &pdfPage{doc: d, num: i}
}

func (d *pdfDocument) Close() error {
	if d.file != nil {
		d.file.Close()
	}
	return d.fz.Close()
}

type pdfPage struct {
	doc *pdfDocument
	num int // zero-based
}

// Text returns the page's digital text layer, empty when there is none.
func (p *pdfPage) Text() (string, error) {
	if p.doc.reader == nil || p.num+1 > p.doc.reader.NumPage() {
		return "", nil
	}

	page := p.doc.reader.Page(p.num + 1)
	if page.V.IsNull() {
		return "", nil
	}

	fonts := make(map[string]*ltpdf.Font)
	text, err := page.GetPlainText(fonts)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", p.num+1, err)
	}
	return text, nil
}

// Render rasterizes the full page. MuPDF renders at 72 DPI per unit of
// linear scale.
func (p *pdfPage) Render(scale float64) (image.Image, error) {
	img, err := p.doc.fz.ImageDPI(p.num, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", p.num+1, err)
	}
	return img, nil
}

// Images enumerates the decodable raster images embedded in the page.
func (p *pdfPage) Images() ([]image.Image, error) {
	f, err := os.Open(p.doc.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen PDF for image extraction: %w", err)
	}
	defer f.Close()

	pageSel := []string{strconv.Itoa(p.num + 1)}
	raw, err := api.ExtractImagesRaw(f, pageSel, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from page %d: %w", p.num+1, err)
	}

	var images []image.Image
	for _, pageImages := range raw {
		for _, pi := range pageImages {
			img, _, err := image.Decode(pi)
			if err != nil {
				// Unsupported codec (CCITT, JBIG2, ...): skip this image.
				logger.Debug("Skipping undecodable embedded image",
					"page", p.num+1, "name", pi.Name, "error", err)
				continue
			}
			images = append(images, img)
		}
	}

	return images, nil
}
