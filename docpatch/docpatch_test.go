package docpatch

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adguardDoc = `http:
  address: 0.0.0.0:3000
# upstream settings
dns:
  bind_hosts:
    - 0.0.0.0
  allowed_clients: []
  disallowed_clients:
    - 1.1.1.1
    - 2.2.2.0/24
  blocked_hosts:
    - version.bind
users: []
`

func TestPatch(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		entries  []string
		expected string
	}{
		{
			name:    "replaces existing block",
			doc:     adguardDoc,
			entries: []string{"10.0.0.0/8", "5.6.7.8"},
			expected: `http:
  address: 0.0.0.0:3000
# upstream settings
dns:
  bind_hosts:
    - 0.0.0.0
  allowed_clients: []
  disallowed_clients:
    - 10.0.0.0/8
    - 5.6.7.8
  blocked_hosts:
    - version.bind
users: []
`,
		},
		{
			name:    "empty entries keep the key",
			doc:     adguardDoc,
			entries: nil,
			expected: `http:
  address: 0.0.0.0:3000
# upstream settings
dns:
  bind_hosts:
    - 0.0.0.0
  allowed_clients: []
  disallowed_clients:
  blocked_hosts:
    - version.bind
users: []
`,
		},
		{
			name:     "inline value is stripped",
			doc:      "dns:\n  disallowed_clients: []\n  blocked_hosts: []\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n  blocked_hosts: []\n",
		},
		{
			name:     "compact sequence at key indent",
			doc:      "dns:\n  disallowed_clients:\n  - 1.1.1.1\n  - 2.2.2.2\n  blocked_hosts: []\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n  blocked_hosts: []\n",
		},
		{
			name:     "block is last in document",
			doc:      "dns:\n  disallowed_clients:\n    - 1.1.1.1",
			entries:  []string{"9.9.9.9", "8.8.8.0/24"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n    - 8.8.8.0/24\n",
		},
		{
			name:     "key line is last without newline",
			doc:      "dns:\n  disallowed_clients: []",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n",
		},
		{
			name:     "key line is last, no entries",
			doc:      "dns:\n  disallowed_clients: []",
			entries:  nil,
			expected: "dns:\n  disallowed_clients:",
		},
		{
			name:     "CRLF line endings",
			doc:      "a: 1\r\ndisallowed_clients:\r\n  - x\r\nb: 2\r\n",
			entries:  []string{"1.2.3.4"},
			expected: "a: 1\r\ndisallowed_clients:\r\n  - 1.2.3.4\r\nb: 2\r\n",
		},
		{
			name:     "quoted key",
			doc:      "dns:\n  'disallowed_clients': [1.1.1.1]\n  other: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  'disallowed_clients':\n    - 9.9.9.9\n  other: x\n",
		},
		{
			name: "comments inside and after block",
			doc: "dns:\n  disallowed_clients:\n    # old entries\n    - 1.1.1.1\n" +
				"  # kept comment\n  other: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n  # kept comment\n  other: x\n",
		},
		{
			name:     "blank line ends block",
			doc:      "disallowed_clients:\n  - 1.1.1.1\n\nnext: true\n",
			entries:  []string{"9.9.9.9"},
			expected: "disallowed_clients:\n  - 9.9.9.9\n\nnext: true\n",
		},
		{
			name:     "whitespace-only line inside block",
			doc:      "disallowed_clients:\n  - 1.1.1.1\n  \n  - 2.2.2.2\nnext: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "disallowed_clients:\n  - 9.9.9.9\nnext: x\n",
		},
		{
			name:     "whitespace-only line at key indent ends block",
			doc:      "dns:\n  disallowed_clients:\n    - 1.1.1.1\n  \n  other: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n  disallowed_clients:\n    - 9.9.9.9\n  \n  other: x\n",
		},
		{
			name:     "byte order mark before key",
			doc:      "\ufeffdisallowed_clients:\n  - 1.1.1.1\nnext: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "\ufeffdisallowed_clients:\n  - 9.9.9.9\nnext: x\n",
		},
		{
			name:     "tab indented",
			doc:      "dns:\n\tdisallowed_clients:\n\t\t- 1.1.1.1\n\tother: x\n",
			entries:  []string{"9.9.9.9"},
			expected: "dns:\n\tdisallowed_clients:\n\t  - 9.9.9.9\n\tother: x\n",
		},
		{
			name:     "similar key names are not matched",
			doc:      "disallowed_clients_v6:\n  - ::1\ndisallowed_clients:\n  - 1.1.1.1\n",
			entries:  []string{"9.9.9.9"},
			expected: "disallowed_clients_v6:\n  - ::1\ndisallowed_clients:\n  - 9.9.9.9\n",
		},
		{
			name:     "only first occurrence is patched",
			doc:      "disallowed_clients:\n  - 1.1.1.1\ndisallowed_clients:\n  - 2.2.2.2\n",
			entries:  []string{"9.9.9.9"},
			expected: "disallowed_clients:\n  - 9.9.9.9\ndisallowed_clients:\n  - 2.2.2.2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Patch([]byte(tt.doc), "disallowed_clients", tt.entries)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestPatchMissingKey(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		entries  []string
		expected string
	}{
		{
			name:     "appended at end",
			doc:      "a: 1\nb: 2\n",
			entries:  []string{"1.2.3.4", "10.0.0.0/8"},
			expected: "a: 1\nb: 2\ndisallowed_clients:\n  - 1.2.3.4\n  - 10.0.0.0/8\n",
		},
		{
			name:     "no trailing newline",
			doc:      "a: 1\nb: 2",
			entries:  []string{"1.2.3.4"},
			expected: "a: 1\nb: 2\ndisallowed_clients:\n  - 1.2.3.4\n",
		},
		{
			name:     "empty document",
			doc:      "",
			entries:  []string{"1.2.3.4"},
			expected: "disallowed_clients:\n  - 1.2.3.4\n",
		},
		{
			name:     "byte order mark only",
			doc:      "\ufeff",
			entries:  []string{"1.2.3.4"},
			expected: "\ufeffdisallowed_clients:\n  - 1.2.3.4\n",
		},
		{
			name:     "byte order mark without trailing newline",
			doc:      "\ufeffa: 1",
			entries:  []string{"1.2.3.4"},
			expected: "\ufeffa: 1\ndisallowed_clients:\n  - 1.2.3.4\n",
		},
		{
			name:     "empty entries",
			doc:      "a: 1\n",
			entries:  nil,
			expected: "a: 1\ndisallowed_clients:\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := string(Patch([]byte(tt.doc), "disallowed_clients", tt.entries))
			assert.Equal(t, tt.expected, out)
			assert.True(t, strings.HasPrefix(out, tt.doc), "original content must be unchanged")
		})
	}
}

func TestPatchIdempotent(t *testing.T) {
	docs := []string{
		adguardDoc,
		"dns:\n  disallowed_clients: []",
		"dns:\n  disallowed_clients:\n  - 1.1.1.1\n",
		"a: 1\r\nb: 2\r\n",
		"\ufeffdisallowed_clients:\n  - 1.1.1.1\n",
	}
	entryLists := [][]string{nil, {"1.2.3.4"}, {"10.0.0.0/8", "10.0.0.0/8", "192.0.2.1"}}

	for _, doc := range docs {
		for _, entries := range entryLists {
			once := Patch([]byte(doc), "disallowed_clients", entries)
			twice := Patch(once, "disallowed_clients", entries)
			assert.Equal(t, string(once), string(twice))
		}
	}
}

func TestPatchPreservesUnrelatedLines(t *testing.T) {
	before := "http:\n  address: 0.0.0.0:3000\n# upstream settings\ndns:\n  bind_hosts:\n    - 0.0.0.0\n  allowed_clients: []\n"
	after := "  blocked_hosts:\n    - version.bind\nusers: []\n"

	for _, entries := range [][]string{nil, {"1.2.3.4"}, {"1.2.3.4", "5.6.7.0/24", "9.9.9.9"}} {
		out := string(Patch([]byte(adguardDoc), "disallowed_clients", entries))
		assert.True(t, strings.HasPrefix(out, before))
		assert.True(t, strings.HasSuffix(out, after))
	}
}

func TestIndentWidth(t *testing.T) {
	assert.Equal(t, 0, indentWidth("key: value"))
	assert.Equal(t, 2, indentWidth("  key:"))
	assert.Equal(t, 2, indentWidth("\t\t- x"))
	assert.Equal(t, 4, indentWidth("    "))
}

func TestPatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AdGuardHome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(adguardDoc), 0o600))

	require.NoError(t, PatchFile(path, "disallowed_clients", []string{"10.0.0.0/8"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "  disallowed_clients:\n    - 10.0.0.0/8\n  blocked_hosts:")

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "permissions of the document are kept")

	assertOnlyFiles(t, dir, "AdGuardHome.yaml")
}

func TestPatchFileMissing(t *testing.T) {
	dir := t.TempDir()
	err := PatchFile(filepath.Join(dir, "absent.yaml"), "disallowed_clients", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assertOnlyFiles(t, dir)
}

func TestPatchFileInterruptedWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AdGuardHome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(adguardDoc), 0o644))

	orig := writeContent
	t.Cleanup(func() { writeContent = orig })
	writeContent = func(w io.Writer, data []byte) error {
		if _, err := w.Write(data[:len(data)/2]); err != nil {
			return err
		}
		return errors.New("disk full")
	}

	err := PatchFile(path, "disallowed_clients", []string{"10.0.0.0/8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, adguardDoc, string(data))

	assertOnlyFiles(t, dir, "AdGuardHome.yaml")
}

func TestBackupManager(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "AdGuardHome.yaml")
	first := filepath.Join(dir, "AdGuardHome.yaml.first-start.bak")
	last := filepath.Join(dir, "AdGuardHome.yaml.last-update.bak")
	require.NoError(t, os.WriteFile(doc, []byte(adguardDoc), 0o644))

	bm := NewBackupManager(doc, first, last)

	// Cycle 1
	created, err := bm.EnsureFirstStartBackup()
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, bm.SnapshotBeforeUpdate())
	require.NoError(t, PatchFile(doc, "disallowed_clients", []string{"10.0.0.0/8"}))
	cycle1, err := os.ReadFile(doc)
	require.NoError(t, err)

	assertFileContent(t, adguardDoc, first)
	assertFileContent(t, adguardDoc, last)

	// Cycle 2
	created, err = bm.EnsureFirstStartBackup()
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, bm.SnapshotBeforeUpdate())
	require.NoError(t, PatchFile(doc, "disallowed_clients", []string{"192.0.2.0/24"}))

	current, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.NotEqual(t, adguardDoc, string(current))
	assertFileContent(t, adguardDoc, first)
	assertFileContent(t, string(cycle1), last)
}

func TestBackupManagerMissingDocument(t *testing.T) {
	dir := t.TempDir()
	bm := NewBackupManager(filepath.Join(dir, "absent.yaml"), filepath.Join(dir, "a.bak"), filepath.Join(dir, "b.bak"))

	_, err := bm.EnsureFirstStartBackup()
	assert.Error(t, err)
	assert.Error(t, bm.SnapshotBeforeUpdate())
	assertOnlyFiles(t, dir)
}

func assertFileContent(t *testing.T, expected, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, expected, string(data))
}

// assertOnlyFiles checks that no temporary files were left behind.
func assertOnlyFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, names, got)
}
