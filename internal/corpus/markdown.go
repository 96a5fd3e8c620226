package corpus

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s+(.*)`)
	hashtagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][\w-]*)`)
)

// ParseHunt reads one markdown hunt file. The hypothesis is the first prose
// line. The tactic comes from the third column of the first table whose
// header names a tactic or technique. Hashtags become tags.
func ParseHunt(r io.Reader, path string) (hunt.Record, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return hunt.Record{}, fmt.Errorf("error reading %s: %w", path, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	rec := hunt.Record{
		ID:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Filepath: path,
	}

	tableCells := tableRow(lines)
	seen := make(map[string]bool)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			if rec.Title == "" {
				rec.Title = cleanMarkdown(m[1])
			}
			continue
		}
		if strings.HasPrefix(trimmed, "|") {
			continue
		}

		if rec.Hypothesis == "" {
			rec.Hypothesis = cleanMarkdown(trimmed)
		}
		for _, m := range hashtagRe.FindAllStringSubmatch(trimmed, -1) {
			tag := strings.ToLower(m[1])
			if !seen[tag] {
				seen[tag] = true
				rec.Tags = append(rec.Tags, tag)
			}
		}
	}

	if len(tableCells) >= 2 && rec.Hypothesis == "" {
		rec.Hypothesis = cleanMarkdown(tableCells[1])
	}
	if len(tableCells) >= 3 {
		rec.Tactic = cleanMarkdown(tableCells[2])
	}
	if len(tableCells) >= 5 {
		for _, m := range hashtagRe.FindAllStringSubmatch(tableCells[4], -1) {
			tag := strings.ToLower(m[1])
			if !seen[tag] {
				seen[tag] = true
				rec.Tags = append(rec.Tags, tag)
			}
		}
	}

	// A heading that only repeats the file ID carries no comparable text.
	if strings.EqualFold(rec.Title, rec.ID) {
		rec.Title = ""
	}

	if strings.TrimSpace(rec.Title) == "" && strings.TrimSpace(rec.Hypothesis) == "" {
		return hunt.Record{}, &hunt.ValidationError{Field: "hunt", Value: path, Message: "no title or hypothesis found"}
	}
	return rec, nil
}

// tableRow returns the cells of the first data row under a header that
// mentions a tactic or technique.
func tableRow(lines []string) []string {
	for i, line := range lines {
		if !strings.Contains(line, "|") {
			continue
		}
		if !strings.Contains(line, "Tactic") && !strings.Contains(line, "Technique") {
			continue
		}
		if i+2 >= len(lines) || !strings.Contains(lines[i+2], "|") {
			return nil
		}
		return extractCells(lines[i+2])
	}
	return nil
}

func extractCells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")

	parts := strings.Split(row, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

var markdownRe = regexp.MustCompile("[*_`]+")

func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "<br>", " ")
	s = markdownRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
