// Package docpatch rewrites a single key of an indentation-structured
// document (the AdGuard Home YAML configuration) in place.
//
// The document is never parsed and re-serialized. Only the lines that make up
// the value of the target key are replaced; every other byte, including
// comments, quoting and key order, is copied through unchanged.
package docpatch

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/renameio/v2"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/docpatch")

var bom = []byte("\ufeff")

// Patch returns doc with the value of key replaced by a block sequence of
// entries. Only the first occurrence of key is rewritten. If key is absent it
// is appended at the end of the document.
func Patch(doc []byte, key string, entries []string) []byte {
	out := make([]byte, 0, len(doc)+len(entries)*24)
	// A byte order mark is kept but must not hide a key on the first line.
	if bytes.HasPrefix(doc, bom) {
		out = append(out, bom...)
		doc = doc[len(bom):]
	}
	start := len(out)
	lines := splitLines(doc)
	nl := lineEnding(lines)

	var (
		patched   bool
		inBlock   bool
		keyIndent int
	)

	for _, line := range lines {
		content := trimEOL(line)

		if inBlock {
			if content == "" {
				inBlock = false
			} else {
				indent := indentWidth(content)
				if indent > keyIndent || (indent == keyIndent && isSequenceItem(content)) {
					// Part of the old value, discard.
					continue
				}
				inBlock = false
			}
		}

		if !patched && matchesKey(content, key) {
			keyIndent = indentWidth(content)
			prefix := content[:len(content)-len(strings.TrimLeft(content, " \t"))]

			eol := line[len(content):]
			if eol == "" && len(entries) > 0 {
				eol = nl
			}
			out = append(out, prefix...)
			out = append(out, keyToken(content)...)
			out = append(out, ':')
			out = append(out, eol...)
			out = appendEntries(out, prefix+"  ", entries, nl)

			patched = true
			inBlock = true
			continue
		}

		out = append(out, line...)
	}

	if !patched {
		log.Infof("key %q not found, appending it", key)
		if len(out) > start && !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, nl...)
		}
		out = append(out, key...)
		out = append(out, ':')
		out = append(out, nl...)
		out = appendEntries(out, "  ", entries, nl)
	}

	return out
}

func appendEntries(out []byte, indent string, entries []string, nl string) []byte {
	for _, e := range entries {
		out = append(out, indent...)
		out = append(out, "- "...)
		out = append(out, e...)
		out = append(out, nl...)
	}
	return out
}

// splitLines splits doc after every '\n', keeping the terminators. The last
// element has no terminator if doc does not end with a newline.
func splitLines(doc []byte) []string {
	if len(doc) == 0 {
		return nil
	}
	return strings.SplitAfter(string(doc), "\n")
}

// lineEnding returns the terminator used by the document, "\n" by default.
func lineEnding(lines []string) string {
	for _, l := range lines {
		if strings.HasSuffix(l, "\r\n") {
			return "\r\n"
		}
		if strings.HasSuffix(l, "\n") {
			return "\n"
		}
	}
	return "\n"
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// indentWidth counts leading whitespace in columns (runes), not bytes.
func indentWidth(content string) int {
	ws := content[:len(content)-len(strings.TrimLeft(content, " \t"))]
	return utf8.RuneCountInString(ws)
}

func isSequenceItem(content string) bool {
	t := strings.TrimLeft(content, " \t")
	return t == "-" || strings.HasPrefix(t, "- ")
}

// matchesKey reports whether content is a mapping entry for key, optionally
// quoted.
func matchesKey(content, key string) bool {
	t := strings.TrimLeft(content, " \t")
	for _, k := range []string{key, "'" + key + "'", `"` + key + `"`} {
		if strings.HasPrefix(t, k+":") {
			return true
		}
	}
	return false
}

// keyToken returns the key as written on the line, quotes included.
func keyToken(content string) string {
	t := strings.TrimLeft(content, " \t")
	return t[:strings.Index(t, ":")]
}

// writeContent writes the patched document to the pending file.
var writeContent = func(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// WriteFile atomically replaces path with data. The data is written to a
// temporary file in the same directory, synced and renamed over path, so a
// reader sees either the old or the new content. On error path is untouched.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	t, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(perm),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	defer t.Cleanup()

	if err := writeContent(t, data); err != nil {
		return fmt.Errorf("write temporary file for %s: %w", path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// PatchFile applies Patch to the file at path and atomically replaces it.
func PatchFile(path, key string, entries []string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	if err := WriteFile(path, Patch(doc, key, entries), 0o644); err != nil {
		return err
	}
	log.Infof("updated %s with %d %s entries", path, len(entries), key)
	return nil
}
