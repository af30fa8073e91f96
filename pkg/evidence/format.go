package evidence

import (
	"fmt"
	"strings"
	"time"
)

const (
	sectionRepository = "REPOSITORY"
	sectionDeck       = "PITCH DECK"
	sectionDemo       = "DEMO"
)

type block struct {
	builder strings.Builder
	name    string
}

func newBlock(name string) *block {
	b := &block{name: name}
	b.builder.WriteString("=== " + name + " ANALYSIS ===\n")
	return b
}

func (b *block) line(label string, value interface{}) {
	b.builder.WriteString(fmt.Sprintf("%s: %v\n", label, value))
}

func (b *block) text(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.builder.WriteString(label + ":\n")
	b.builder.WriteString(strings.TrimSpace(value))
	b.builder.WriteString("\n")
}

func (b *block) String() string {
	return b.builder.String() + "=== END " + b.name + " ANALYSIS ==="
}

// FormatRepository renders repository evidence as a delimited prompt block.
func FormatRepository(ev RepositoryEvidence) string {
	b := newBlock(sectionRepository)
	b.line("URL", orNone(ev.URL))
	if ev.Owner != "" || ev.Name != "" {
		b.line("Repository", ev.Owner+"/"+ev.Name)
	}
	b.line("Accessible", yesNo(ev.Accessible))
	if !ev.Accessible {
		b.line("Error", orNone(ev.Error))
		return b.String()
	}

	b.line("Description", orNone(ev.Description))
	b.line("Primary language", orNone(ev.Language))
	b.line("Stars / forks / open issues", fmt.Sprintf("%d / %d / %d", ev.Stars, ev.Forks, ev.OpenIssues))
	if len(ev.Topics) > 0 {
		b.line("Topics", strings.Join(ev.Topics, ", "))
	}
	if ev.DefaultBranch != "" {
		b.line("Default branch", ev.DefaultBranch)
	}
	if ev.PushedAt != nil {
		b.line("Last push", ev.PushedAt.UTC().Format(time.RFC3339))
	}
	if ev.Archived {
		b.line("Archived", "yes")
	}
	b.line("License", orNone(ev.License))
	b.line("Dependency manifests", joinOrNone(ev.Manifests))
	b.line("Tests present", yesNo(ev.HasTests))
	b.line("CI configuration", yesNo(ev.HasCI))
	b.line("Container setup", yesNo(ev.HasDocker))
	if len(ev.RootEntries) > 0 {
		b.line("Root entries", strings.Join(ev.RootEntries, ", "))
	}
	readme := ev.ReadmeExcerpt
	if ev.ReadmeTruncated && readme != "" {
		readme += truncationMarker
	}
	if readme == "" {
		b.line("README", "not found")
	} else {
		b.text("README (first 4 KB)", readme)
	}
	return b.String()
}

// FormatDeck renders pitch-deck evidence as a delimited prompt block.
func FormatDeck(ev DeckEvidence) string {
	b := newBlock(sectionDeck)
	b.line("URL", orNone(ev.URL))
	b.line("Type", orNone(string(ev.Type)))
	b.line("Accessible", yesNo(ev.Accessible))
	b.line("Content extracted", yesNo(ev.ContentExtracted))
	if ev.ContentType != "" {
		b.line("Content type", ev.ContentType)
	}
	b.line("Summary", orNone(ev.Summary))
	if ev.Error != "" {
		b.line("Error", ev.Error)
	}
	b.text("Extracted text", ev.Text)
	return b.String()
}

// FormatDemo renders demo evidence as a delimited prompt block.
func FormatDemo(ev DemoEvidence) string {
	b := newBlock(sectionDemo)
	b.line("URL", orNone(ev.URL))
	b.line("Live", yesNo(ev.IsLive))
	if ev.StatusCode != 0 {
		b.line("HTTP status", ev.StatusCode)
	}
	if ev.LatencyMs > 0 {
		b.line("Response time", fmt.Sprintf("%d ms", ev.LatencyMs))
	}
	if ev.FinalURL != "" && ev.FinalURL != ev.URL {
		b.line("Final URL", ev.FinalURL)
	}
	if ev.Title != "" {
		b.line("Page title", ev.Title)
	}
	if ev.ContentType != "" {
		b.line("Content type", ev.ContentType)
	}
	if ev.IsLive {
		b.line("Detected technologies", joinOrNone(ev.TechHints))
	}
	if ev.Error != "" {
		b.line("Error", ev.Error)
	}
	return b.String()
}

// FormatUnavailable renders the fixed warning block used when a source could not be inspected.
func FormatUnavailable(source, reason string) string {
	name := strings.ToUpper(strings.TrimSpace(source))
	if name == "" {
		name = "SOURCE"
	}
	b := newBlock(name)
	b.line("Status", "unavailable")
	b.line("Note", orNone(reason))
	b.builder.WriteString("WARNING: this evidence could not be collected automatically; judge this aspect from the write-up only.\n")
	return b.String()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "none"
	}
	return value
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
