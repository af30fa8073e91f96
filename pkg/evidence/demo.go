package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const (
	demoBodyByteLimit = 2 * 1024
	demoMaxRedirects  = 10
	demoSourceLabel   = "demo"
)

type signature struct {
	needle string
	hint   string
}

var bodySignatures = []signature{
	{"/_next/static", "Next.js"},
	{"__next_data__", "Next.js"},
	{"data-reactroot", "React"},
	{"react-dom", "React"},
	{"__nuxt", "Nuxt"},
	{"/_nuxt/", "Nuxt"},
	{"data-v-", "Vue.js"},
	{"vue.runtime", "Vue.js"},
	{"ng-version", "Angular"},
	{"svelte", "Svelte"},
	{"___gatsby", "Gatsby"},
	{"astro-island", "Astro"},
	{"/@vite/client", "Vite"},
	{"wp-content", "WordPress"},
	{"streamlit", "Streamlit"},
	{"gradio", "Gradio"},
	{"tailwind", "Tailwind CSS"},
	{"bootstrap", "Bootstrap"},
	{"firebaseapp", "Firebase"},
	{"supabase", "Supabase"},
}

var headerSignatures = []struct {
	header string
	needle string
	hint   string
}{
	{"Server", "vercel", "Vercel"},
	{"X-Vercel-Id", "", "Vercel"},
	{"Server", "netlify", "Netlify"},
	{"X-Nf-Request-Id", "", "Netlify"},
	{"Server", "cloudflare", "Cloudflare"},
	{"Server", "github.com", "GitHub Pages"},
	{"X-GitHub-Request-Id", "", "GitHub Pages"},
	{"Fly-Request-Id", "", "Fly.io"},
	{"X-Render-Origin-Server", "", "Render"},
	{"Via", "vegur", "Heroku"},
	{"X-Powered-By", "next.js", "Next.js"},
	{"X-Powered-By", "express", "Express"},
	{"X-Powered-By", "php", "PHP"},
	{"Server", "nginx", "nginx"},
	{"X-Amz-Cf-Id", "", "Amazon CloudFront"},
}

// DemoConfig configures the demo probe.
type DemoConfig struct {
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// HTTPDemoFetcher probes demo URLs with a strict timeout.
type HTTPDemoFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewDemoFetcher constructs a DemoFetcher. The timeout defaults to 10 seconds.
func NewDemoFetcher(cfg DemoConfig) *HTTPDemoFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= demoMaxRedirects {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		}
	}

	return &HTTPDemoFetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger.With().Str("component", "demo_fetcher").Logger(),
	}
}

// Fetch probes the demo. It never returns an error; failures yield IsLive=false.
func (f *HTTPDemoFetcher) Fetch(parent context.Context, rawURL string) DemoEvidence {
	start := time.Now()
	evidence := DemoEvidence{URL: rawURL}
	defer func() { observeFetch(demoSourceLabel, start, evidence.IsLive) }()

	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		evidence.Error = fmt.Sprintf("invalid url: %v", err)
		return evidence
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	evidence.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		evidence.Error = describeError(err, f.timeout)
		return evidence
	}
	defer resp.Body.Close()

	evidence.StatusCode = resp.StatusCode
	evidence.FinalURL = resp.Request.URL.String()
	evidence.ContentType = mediaType(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		evidence.Error = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return evidence
	}

	evidence.IsLive = true

	body, _, err := readPrefix(resp.Body, demoBodyByteLimit)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", rawURL).Msg("failed to read demo body prefix")
	}

	evidence.Title = pageTitle(body)
	evidence.TechHints = detectTechHints(resp.Header, body)
	return evidence
}

func detectTechHints(headers http.Header, body []byte) []string {
	found := map[string]struct{}{}

	for _, sig := range headerSignatures {
		value := headers.Get(sig.header)
		if value == "" {
			continue
		}
		if sig.needle == "" || strings.Contains(strings.ToLower(value), sig.needle) {
			found[sig.hint] = struct{}{}
		}
	}

	lowerBody := strings.ToLower(string(body))
	for _, sig := range bodySignatures {
		if strings.Contains(lowerBody, sig.needle) {
			found[sig.hint] = struct{}{}
		}
	}

	hints := make([]string, 0, len(found))
	for hint := range found {
		hints = append(hints, hint)
	}
	sort.Strings(hints)
	return hints
}

func pageTitle(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			inTitle = string(name) == "title"
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				return ""
			}
		case html.TextToken:
			if inTitle {
				return strings.Join(strings.Fields(string(tokenizer.Text())), " ")
			}
		}
	}
}
