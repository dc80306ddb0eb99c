// Package payload loads the message delivered to every target of a campaign.
package payload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/outreach/internal/targets"
)

// Payload is the message text plus optional metadata from frontmatter.
type Payload struct {
	Text     string
	Campaign string
	Subject  string
	Source   string
}

type frontmatter struct {
	Campaign string `yaml:"campaign"`
	Subject  string `yaml:"subject"`
}

// Load returns the inline text when set, otherwise the contents of file.
// Files may start with YAML frontmatter; .html and .htm bodies are converted
// to markdown. An empty payload is an error.
func Load(text, file string) (Payload, error) {
	if strings.TrimSpace(text) != "" {
		return Payload{Text: text, Source: "inline"}, nil
	}
	if file == "" {
		return Payload{}, fmt.Errorf("payload is empty: set a message or a message file")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return Payload{}, fmt.Errorf("read message file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(file))
	p, err := Parse(string(data), ext == ".html" || ext == ".htm")
	if err != nil {
		return Payload{}, fmt.Errorf("parse message file %s: %w", file, err)
	}
	p.Source = file
	return p, nil
}

// Parse reads a payload document with optional frontmatter.
func Parse(content string, html bool) (Payload, error) {
	meta, body, err := splitFrontmatter(content)
	if err != nil {
		return Payload{}, err
	}

	var fm frontmatter
	if meta != "" {
		if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
			return Payload{}, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
		}
	}

	if html {
		body, err = htmlToMarkdown(body)
		if err != nil {
			return Payload{}, err
		}
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return Payload{}, fmt.Errorf("payload is empty")
	}

	return Payload{Text: body, Campaign: fm.Campaign, Subject: fm.Subject}, nil
}

// Render substitutes {{recipient}} and {{target_id}} for rec.
func Render(text string, rec targets.Record) string {
	return strings.NewReplacer(
		"{{recipient}}", rec.Label(),
		"{{target_id}}", rec.TargetID,
	).Replace(text)
}

// splitFrontmatter separates a leading "---" delimited block from the body.
// Content without a leading delimiter is all body.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", content, nil
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("YAML frontmatter must be closed with '---'")
}

func htmlToMarkdown(html string) (string, error) {
	opts := &md.Options{
		HeadingStyle:    "atx",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	}
	converter := md.NewConverter("", true, opts)
	converter.Remove("script", "style")

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return markdown, nil
}
