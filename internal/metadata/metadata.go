package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ---------- Types ----------

// Document is the metadata of one public PDF.
type Document struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Producer     string `json:"producer,omitempty"`
	CreationDate string `json:"creation_date,omitempty"`
	ModDate      string `json:"mod_date,omitempty"`
	Pages        int    `json:"pages,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Options configures an Extractor.
type Options struct {
	MaxDocuments int
	MaxSize      int64
	Parallel     int64
	Timeout      time.Duration
	UserAgent    string
}

const (
	DefaultMaxDocuments       = 5
	DefaultMaxSize      int64 = 10 << 20
)

// Extractor downloads documents and reads their info dictionary.
type Extractor struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

var (
	confOnce sync.Once
	pdfConf  *model.Configuration
)

// configuration returns a relaxed pdfcpu configuration that never touches the
// user's config directory.
func configuration() *model.Configuration {
	confOnce.Do(func() {
		model.ConfigPath = "disable"
		pdfConf = model.NewDefaultConfiguration()
		pdfConf.ValidationMode = model.ValidationRelaxed
	})
	return pdfConf
}

// NewExtractor creates an extractor. Zero options take their defaults.
func NewExtractor(opts Options, logger *zap.Logger) *Extractor {
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = DefaultMaxDocuments
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With(zap.String("component", "metadata")),
	}
}

// ---------- public API ----------

// Extract fetches at most MaxDocuments of urls and returns one Document per
// attempted URL, in input order. Per-document failures are reported in
// Document.Error; only cancellation is returned as an error.
func (e *Extractor) Extract(ctx context.Context, urls []string) ([]Document, error) {
	if len(urls) > e.opts.MaxDocuments {
		urls = urls[:e.opts.MaxDocuments]
	}
	docs := make([]Document, len(urls))
	sem := semaphore.NewWeighted(e.opts.Parallel)
	var wg sync.WaitGroup

	for i, u := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return docs[:i], err
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			defer sem.Release(1)
			docs[i] = e.Fetch(ctx, u)
		}(i, u)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return docs, err
	}
	return docs, nil
}

// Fetch downloads one document and reads its metadata.
func (e *Extractor) Fetch(ctx context.Context, docURL string) Document {
	doc := Document{URL: docURL}
	data, err := e.download(ctx, docURL)
	if err != nil {
		doc.Error = err.Error()
		e.logger.Debug("document download failed", zap.String("url", docURL), zap.Error(err))
		return doc
	}
	doc.Size = int64(len(data))

	info, err := Read(bytes.NewReader(data))
	if err != nil {
		doc.Error = err.Error()
		e.logger.Debug("document not readable", zap.String("url", docURL), zap.Error(err))
		return doc
	}
	info.URL = doc.URL
	info.Size = doc.Size
	return info
}

// Read parses a PDF and returns its info dictionary fields and page count.
func Read(rs io.ReadSeeker) (doc Document, err error) {
	// pdfcpu panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf read: %v", r)
		}
	}()

	pdf, err := api.ReadAndValidate(rs, configuration())
	if err != nil {
		return Document{}, fmt.Errorf("pdf read: %w", err)
	}
	x := pdf.XRefTable
	return Document{
		Title:        clean(x.Title),
		Author:       clean(x.Author),
		Subject:      clean(x.Subject),
		Keywords:     clean(x.Keywords),
		Creator:      clean(x.Creator),
		Producer:     clean(x.Producer),
		CreationDate: clean(x.CreationDate),
		ModDate:      clean(x.ModDate),
		Pages:        x.PageCount,
	}, nil
}

// ---------- helpers ----------

func (e *Extractor) download(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, err
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.ContentLength > e.opts.MaxSize {
		return nil, errTooLarge(e.opts.MaxSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.opts.MaxSize {
		return nil, errTooLarge(e.opts.MaxSize)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, errors.New("not a pdf document")
	}
	return data, nil
}

func errTooLarge(limit int64) error {
	return fmt.Errorf("document exceeds %d bytes", limit)
}

func clean(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}
