package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/outreach/internal/targets"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_InlineWins(t *testing.T) {
	path := writeFile(t, "msg.txt", "from file")

	p, err := Load("inline text", path)

	require.NoError(t, err)
	assert.Equal(t, "inline text", p.Text)
	assert.Equal(t, "inline", p.Source)
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load("  ", "")
	assert.Error(t, err)

	_, err = Load("", writeFile(t, "empty.txt", "\n\n"))
	assert.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoad_Frontmatter(t *testing.T) {
	path := writeFile(t, "msg.md", "---\ncampaign: spring\nsubject: Hello\n---\nHi {{recipient}}!\n")

	p, err := Load("", path)

	require.NoError(t, err)
	assert.Equal(t, "Hi {{recipient}}!", p.Text)
	assert.Equal(t, "spring", p.Campaign)
	assert.Equal(t, "Hello", p.Subject)
	assert.Equal(t, path, p.Source)
}

func TestLoad_PlainFile(t *testing.T) {
	p, err := Load("", writeFile(t, "msg.txt", "line one\r\nline two\r\n"))

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", p.Text)
	assert.Empty(t, p.Campaign)
}

func TestLoad_HTML(t *testing.T) {
	path := writeFile(t, "msg.html", "<p>Hello <strong>there</strong></p><script>alert(1)</script>")

	p, err := Load("", path)

	require.NoError(t, err)
	assert.Contains(t, p.Text, "**there**")
	assert.NotContains(t, p.Text, "<p>")
	assert.NotContains(t, p.Text, "alert")
}

func TestParse_UnclosedFrontmatter(t *testing.T) {
	_, err := Parse("---\ncampaign: x\nbody", false)
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("---\ncampaign: [\n---\nbody", false)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	text := "Hi {{recipient}} ({{target_id}})"

	assert.Equal(t, "Hi Alice (7)", Render(text, targets.Record{TargetID: "7", RecipientLabel: "Alice"}))
	assert.Equal(t, "Hi 8 (8)", Render(text, targets.Record{TargetID: "8"}))
	assert.Equal(t, "no placeholders", Render("no placeholders", targets.Record{TargetID: "1"}))
}
