// Package evidence gathers bounded, LLM-readable summaries of the external artefacts linked from a
// submission: its source repository, its pitch deck and its live demo. Fetchers never return errors;
// every failure is folded into the evidence value with Accessible/IsLive set to false.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"
)

// DefaultUserAgent identifies outbound evidence requests.
const DefaultUserAgent = "HackHub-Analyzer/1.0"

const truncationMarker = "\n... [truncated]"

// RepositoryEvidence summarises a source repository.
type RepositoryEvidence struct {
	URL             string
	Owner           string
	Name            string
	Accessible      bool
	Error           string
	Description     string
	Language        string
	Stars           int
	Forks           int
	OpenIssues      int
	Topics          []string
	DefaultBranch   string
	PushedAt        *time.Time
	Archived        bool
	License         string
	ReadmeExcerpt   string
	ReadmeTruncated bool
	RootEntries     []string
	Manifests       []string
	HasTests        bool
	HasCI           bool
	HasDocker       bool
}

// DeckType is the pitch-deck kind detected from the URL shape.
type DeckType string

// Supported deck types.
const (
	DeckTypeGoogleSlides DeckType = "google_slides"
	DeckTypeGoogleDocs   DeckType = "google_docs"
	DeckTypePDF          DeckType = "pdf"
	DeckTypeUnknown      DeckType = "unknown"
)

// DeckEvidence summarises a pitch deck.
type DeckEvidence struct {
	URL              string
	Type             DeckType
	Accessible       bool
	ContentExtracted bool
	Summary          string
	Text             string
	ContentType      string
	Error            string
}

// DemoEvidence summarises a live demo probe.
type DemoEvidence struct {
	URL         string
	FinalURL    string
	IsLive      bool
	StatusCode  int
	LatencyMs   int64
	Title       string
	ContentType string
	TechHints   []string
	Error       string
}

// RepositoryFetcher inspects source repositories.
type RepositoryFetcher interface {
	Supports(rawURL string) bool
	Fetch(ctx context.Context, rawURL string) RepositoryEvidence
}

// DeckFetcher extracts pitch-deck content.
type DeckFetcher interface {
	Fetch(ctx context.Context, rawURL string) DeckEvidence
}

// DemoFetcher probes demo URLs.
type DemoFetcher interface {
	Fetch(ctx context.Context, rawURL string) DemoEvidence
}

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}

// readPrefix reads at most limit bytes and reports whether more data was available. A cut never
// splits a UTF-8 sequence.
func readPrefix(r io.Reader, limit int) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) <= limit {
		return data, false, nil
	}

	cut := limit
	for back := 0; cut > 0 && back < utf8.UTFMax-1 && !utf8.RuneStart(data[cut]); back++ {
		cut--
	}
	if !utf8.RuneStart(data[cut]) {
		cut = limit
	}
	return data[:cut], true, nil
}

// describeError renders transport errors, distinguishing timeouts from other failures.
func describeError(err error, timeout time.Duration) string {
	if isTimeout(err) {
		if timeout > 0 {
			return fmt.Sprintf("request timed out after %s", timeout)
		}
		return "request timed out"
	}
	return fmt.Sprintf("request failed: %v", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
