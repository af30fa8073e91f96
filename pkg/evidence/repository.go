package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const (
	readmeByteLimit   = 4 * 1024
	defaultGitHubAPI  = "https://api.github.com"
	githubAcceptJSON  = "application/vnd.github+json"
	githubAcceptRaw   = "application/vnd.github.raw"
	githubSourceLabel = "repository"
)

var manifestEcosystems = map[string]string{
	"go.mod":           "Go modules",
	"package.json":     "npm",
	"requirements.txt": "pip",
	"pyproject.toml":   "Python (pyproject)",
	"pipfile":          "Pipenv",
	"cargo.toml":       "Cargo",
	"pom.xml":          "Maven",
	"build.gradle":     "Gradle",
	"build.gradle.kts": "Gradle",
	"gemfile":          "Bundler",
	"composer.json":    "Composer",
	"pubspec.yaml":     "Dart pub",
	"mix.exs":          "Mix",
}

// GitHubConfig configures the GitHub repository fetcher.
type GitHubConfig struct {
	APIBaseURL string
	Token      string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// GitHubFetcher reads repository metadata, README and root listing from the GitHub REST API.
type GitHubFetcher struct {
	client    *http.Client
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewGitHubFetcher constructs a GitHub-backed RepositoryFetcher.
func NewGitHubFetcher(cfg GitHubConfig) *GitHubFetcher {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultGitHubAPI
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &GitHubFetcher{
		client:    newHTTPClient(cfg.HTTPClient, cfg.Timeout),
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    cfg.Logger.With().Str("component", "github_fetcher").Logger(),
	}
}

// ParseGitHubURL extracts owner and repository name from a github.com URL.
func ParseGitHubURL(rawURL string) (owner, name string, ok bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return "", "", false
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Host, "www."))
	if host != "github.com" {
		return "", "", false
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", false
	}

	return segments[0], strings.TrimSuffix(segments[1], ".git"), true
}

// Supports reports whether the URL points at a GitHub repository.
func (f *GitHubFetcher) Supports(rawURL string) bool {
	_, _, ok := ParseGitHubURL(rawURL)
	return ok
}

// Fetch gathers repository evidence. It never returns an error; failures yield Accessible=false.
func (f *GitHubFetcher) Fetch(parent context.Context, rawURL string) RepositoryEvidence {
	start := time.Now()
	evidence := RepositoryEvidence{URL: rawURL}
	defer func() { observeFetch(githubSourceLabel, start, evidence.Accessible) }()

	owner, name, ok := ParseGitHubURL(rawURL)
	if !ok {
		evidence.Error = "not a github repository url"
		return evidence
	}
	evidence.Owner = owner
	evidence.Name = name

	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	repoPath := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))

	var meta struct {
		Description     string    `json:"description"`
		Language        string    `json:"language"`
		StargazersCount int       `json:"stargazers_count"`
		ForksCount      int       `json:"forks_count"`
		OpenIssuesCount int       `json:"open_issues_count"`
		Topics          []string  `json:"topics"`
		DefaultBranch   string    `json:"default_branch"`
		PushedAt        time.Time `json:"pushed_at"`
		Archived        bool      `json:"archived"`
		License         *struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
	}
	if errText := f.getJSON(ctx, repoPath, &meta); errText != "" {
		evidence.Error = errText
		return evidence
	}

	evidence.Accessible = true
	evidence.Description = strings.TrimSpace(meta.Description)
	evidence.Language = meta.Language
	evidence.Stars = meta.StargazersCount
	evidence.Forks = meta.ForksCount
	evidence.OpenIssues = meta.OpenIssuesCount
	evidence.Topics = meta.Topics
	evidence.DefaultBranch = meta.DefaultBranch
	evidence.Archived = meta.Archived
	if !meta.PushedAt.IsZero() {
		pushed := meta.PushedAt.UTC()
		evidence.PushedAt = &pushed
	}
	if meta.License != nil && meta.License.SPDXID != "" && meta.License.SPDXID != "NOASSERTION" {
		evidence.License = meta.License.SPDXID
	}

	if excerpt, truncated, errText := f.readme(ctx, repoPath); errText == "" {
		evidence.ReadmeExcerpt = excerpt
		evidence.ReadmeTruncated = truncated
	} else {
		f.logger.Debug().Str("repo", owner+"/"+name).Str("reason", errText).Msg("readme unavailable")
	}

	var entries []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if errText := f.getJSON(ctx, repoPath+"/contents", &entries); errText == "" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name)
		}
		applyRootSignals(&evidence, names)
	} else {
		f.logger.Debug().Str("repo", owner+"/"+name).Str("reason", errText).Msg("root listing unavailable")
	}

	return evidence
}

func (f *GitHubFetcher) newRequest(ctx context.Context, path, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return req, nil
}

func (f *GitHubFetcher) getJSON(ctx context.Context, path string, target interface{}) string {
	req, err := f.newRequest(ctx, path, githubAcceptJSON)
	if err != nil {
		return fmt.Sprintf("build request: %v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return describeError(err, f.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("github api returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Sprintf("decode github response: %v", err)
	}
	return ""
}

func (f *GitHubFetcher) readme(ctx context.Context, repoPath string) (string, bool, string) {
	req, err := f.newRequest(ctx, repoPath+"/readme", githubAcceptRaw)
	if err != nil {
		return "", false, err.Error()
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", false, describeError(err, f.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	data, truncated, err := readPrefix(resp.Body, readmeByteLimit)
	if err != nil {
		return "", false, err.Error()
	}

	text := strings.TrimSpace(html.UnescapeString(f.sanitizer.Sanitize(string(data))))
	return text, truncated, ""
}

func applyRootSignals(evidence *RepositoryEvidence, names []string) {
	sort.Strings(names)
	evidence.RootEntries = names

	manifests := map[string]struct{}{}
	for _, name := range names {
		lower := strings.ToLower(name)
		if ecosystem, ok := manifestEcosystems[lower]; ok {
			manifests[fmt.Sprintf("%s (%s)", name, ecosystem)] = struct{}{}
		}

		switch {
		case lower == "test", lower == "tests", lower == "__tests__", lower == "spec",
			strings.HasSuffix(lower, "_test.go"), strings.HasPrefix(lower, "test_"),
			strings.Contains(lower, ".test."), strings.Contains(lower, ".spec."),
			strings.HasPrefix(lower, "jest.config"), lower == "pytest.ini", strings.HasPrefix(lower, "vitest.config"):
			evidence.HasTests = true
		case lower == ".github", lower == ".gitlab-ci.yml", lower == ".circleci", lower == ".travis.yml",
			lower == "azure-pipelines.yml", lower == "jenkinsfile":
			evidence.HasCI = true
		case lower == "dockerfile", strings.HasPrefix(lower, "docker-compose"), strings.HasPrefix(lower, "compose."):
			evidence.HasDocker = true
		case strings.HasPrefix(lower, "license") && evidence.License == "":
			evidence.License = name
		}
	}

	evidence.Manifests = make([]string, 0, len(manifests))
	for manifest := range manifests {
		evidence.Manifests = append(evidence.Manifests, manifest)
	}
	sort.Strings(evidence.Manifests)
}
