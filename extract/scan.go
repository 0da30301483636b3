package extract

import (
	"regexp"
	"strings"
)

// maxCandidates bounds how many top-level objects the brace scan will hand to the decoder.
const maxCandidates = 32

// fencedBlockPattern matches fenced blocks explicitly tagged as JSON.
var fencedBlockPattern = regexp.MustCompile("(?is)```[ \t]*json[ \t]*\\r?\\n?(.*?)```")

// fencedBlocks returns the contents of every json-tagged fenced block, in order.
func fencedBlocks(raw string) []string {
	matches := fencedBlockPattern.FindAllStringSubmatch(raw, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if body := strings.TrimSpace(m[1]); body != "" {
			blocks = append(blocks, body)
		}
	}
	return blocks
}

// balancedObjects scans raw left to right and returns each complete top-level
// {...} span. Braces inside double-quoted string literals are ignored, with
// backslash escapes honored, so prose braces inside values do not end the object.
// A span that never closes is skipped and scanning resumes after its opening brace.
func balancedObjects(raw string) []string {
	var spans []string
	pos := 0
	for pos < len(raw) && len(spans) < maxCandidates {
		start := strings.IndexByte(raw[pos:], '{')
		if start < 0 {
			break
		}
		start += pos

		end := matchBrace(raw, start)
		if end < 0 {
			pos = start + 1
			continue
		}
		spans = append(spans, raw[start:end+1])
		pos = end + 1
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// greedyObject returns everything from the first '{' to the last '}'.
func greedyObject(raw string) []string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil
	}
	return []string{raw[start : end+1]}
}
