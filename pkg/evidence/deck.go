package evidence

import (
	"context"
	"fmt"
	"html"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const (
	deckTextByteLimit = 5 * 1024
	sniffByteLimit    = 512
	deckSourceLabel   = "deck"
	defaultGoogleDocs = "https://docs.google.com"
)

// DeckConfig configures the pitch-deck fetcher.
type DeckConfig struct {
	// ExportBaseURL overrides the Google Docs host used for plain-text exports.
	ExportBaseURL string
	UserAgent     string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

// HTTPDeckFetcher classifies deck URLs and extracts text where the host supports plain-text export.
type HTTPDeckFetcher struct {
	client     *http.Client
	exportBase string
	userAgent  string
	timeout    time.Duration
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// NewDeckFetcher constructs a DeckFetcher.
func NewDeckFetcher(cfg DeckConfig) *HTTPDeckFetcher {
	if cfg.ExportBaseURL == "" {
		cfg.ExportBaseURL = defaultGoogleDocs
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &HTTPDeckFetcher{
		client:     newHTTPClient(cfg.HTTPClient, cfg.Timeout),
		exportBase: strings.TrimRight(cfg.ExportBaseURL, "/"),
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     cfg.Logger.With().Str("component", "deck_fetcher").Logger(),
	}
}

// ClassifyDeck detects the deck type from the URL shape alone.
func ClassifyDeck(rawURL string) DeckType {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return DeckTypeUnknown
	}

	host := strings.ToLower(parsed.Host)
	path := strings.ToLower(parsed.Path)
	switch {
	case host == "docs.google.com" && strings.HasPrefix(path, "/presentation/"):
		return DeckTypeGoogleSlides
	case host == "docs.google.com" && strings.HasPrefix(path, "/document/"):
		return DeckTypeGoogleDocs
	case strings.HasSuffix(path, ".pdf"):
		return DeckTypePDF
	default:
		return DeckTypeUnknown
	}
}

// googleDocumentID returns the id segment of /presentation/d/<id>/... or /document/d/<id>/... paths.
func googleDocumentID(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "d" && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}

// Fetch gathers deck evidence. It never returns an error; failures yield Accessible=false.
func (f *HTTPDeckFetcher) Fetch(parent context.Context, rawURL string) DeckEvidence {
	start := time.Now()
	evidence := DeckEvidence{URL: rawURL, Type: ClassifyDeck(rawURL)}
	defer func() { observeFetch(deckSourceLabel, start, evidence.Accessible) }()

	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	switch evidence.Type {
	case DeckTypeGoogleSlides, DeckTypeGoogleDocs:
		f.exportText(ctx, &evidence)
	case DeckTypePDF:
		f.checkPDF(ctx, &evidence)
	default:
		f.checkGeneric(ctx, &evidence)
	}

	if !evidence.Accessible && evidence.Error == "" {
		evidence.Error = "deck is not accessible"
	}
	return evidence
}

func (f *HTTPDeckFetcher) exportText(ctx context.Context, evidence *DeckEvidence) {
	id := googleDocumentID(evidence.URL)
	if id == "" {
		evidence.Error = "could not find document id in url"
		evidence.Summary = "Google document link without a document id"
		return
	}

	var exportURL string
	if evidence.Type == DeckTypeGoogleSlides {
		exportURL = fmt.Sprintf("%s/presentation/d/%s/export/txt", f.exportBase, url.PathEscape(id))
	} else {
		exportURL = fmt.Sprintf("%s/document/d/%s/export?format=txt", f.exportBase, url.PathEscape(id))
	}

	resp, err := f.do(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		evidence.Error = describeError(err, f.timeout)
		evidence.Summary = "Deck export request failed"
		return
	}
	defer resp.Body.Close()

	evidence.ContentType = mediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode != http.StatusOK {
		evidence.Error = fmt.Sprintf("export returned HTTP %d", resp.StatusCode)
		evidence.Summary = "Deck is not publicly exportable"
		return
	}
	if evidence.ContentType == "text/html" {
		evidence.Error = "export returned an html page, the document is probably not shared publicly"
		evidence.Summary = "Deck requires sign-in"
		return
	}

	data, truncated, err := readPrefix(resp.Body, deckTextByteLimit)
	if err != nil {
		evidence.Error = fmt.Sprintf("read export: %v", err)
		evidence.Summary = "Deck export could not be read"
		return
	}

	text := strings.TrimSpace(html.UnescapeString(f.sanitizer.Sanitize(string(data))))
	if truncated {
		text += truncationMarker
	}

	evidence.Accessible = true
	evidence.ContentExtracted = text != ""
	evidence.Text = text
	label := "Google Slides"
	if evidence.Type == DeckTypeGoogleDocs {
		label = "Google Docs"
	}
	evidence.Summary = fmt.Sprintf("%s deck exported as text (%d bytes%s)", label, len(data), truncatedSuffix(truncated))
}

func (f *HTTPDeckFetcher) checkPDF(ctx context.Context, evidence *DeckEvidence) {
	resp, err := f.do(ctx, http.MethodHead, evidence.URL, nil)
	if err != nil {
		evidence.Error = describeError(err, f.timeout)
		evidence.Summary = "PDF deck is unreachable"
		return
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		f.checkGeneric(ctx, evidence)
		if evidence.Accessible {
			evidence.Summary = fmt.Sprintf("PDF deck reachable (detected %s); text extraction not supported", orUnknown(evidence.ContentType))
		}
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		evidence.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		evidence.Summary = "PDF deck is unreachable"
		return
	}

	evidence.Accessible = true
	evidence.ContentType = mediaType(resp.Header.Get("Content-Type"))
	size := ""
	if resp.ContentLength > 0 {
		size = fmt.Sprintf(", %s", humanBytes(resp.ContentLength))
	}
	evidence.Summary = fmt.Sprintf("PDF deck reachable (%s%s); text extraction not supported", orUnknown(evidence.ContentType), size)
}

func (f *HTTPDeckFetcher) checkGeneric(ctx context.Context, evidence *DeckEvidence) {
	headers := map[string]string{"Range": fmt.Sprintf("bytes=0-%d", sniffByteLimit-1)}
	resp, err := f.do(ctx, http.MethodGet, evidence.URL, headers)
	if err != nil {
		evidence.Error = describeError(err, f.timeout)
		evidence.Summary = "Deck link is unreachable"
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		evidence.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		evidence.Summary = "Deck link is unreachable"
		return
	}

	data, _, err := readPrefix(resp.Body, sniffByteLimit)
	if err != nil {
		evidence.Error = fmt.Sprintf("read deck: %v", err)
		evidence.Summary = "Deck link could not be read"
		return
	}

	evidence.Accessible = true
	evidence.ContentType = mediaType(mimetype.Detect(data).String())
	evidence.Summary = fmt.Sprintf("Deck link reachable (detected %s); content not extracted", evidence.ContentType)
}

func (f *HTTPDeckFetcher) do(ctx context.Context, method, target string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return f.client.Do(req)
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return parsed
}

func humanBytes(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func truncatedSuffix(truncated bool) string {
	if truncated {
		return ", truncated"
	}
	return ""
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown content type"
	}
	return value
}
