package fileops

import (
	"fmt"
	"strings"
)

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// matchIndentByFirstLine re-indents block so its first line carries the
// same indentation as reference. The first line's original indentation
// is stripped from every line that shares it, so relative depth inside
// the block is preserved. Blank lines pass through untouched.
func matchIndentByFirstLine(block, reference string) string {
	lines := strings.Split(block, "\n")
	refIndent := leadingWhitespace(reference)
	firstIndent := leadingWhitespace(lines[0])
	if refIndent == firstIndent {
		return block
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		out[i] = refIndent + strings.TrimPrefix(line, firstIndent)
	}
	return strings.Join(out, "\n")
}

// strReplaceIgnoreIndent matches oldStr against the file line-wise with
// surrounding whitespace stripped, then splices in newStr re-indented
// to the first matched line. The last old line may be a prefix of its
// stripped file line; the remainder is carried into the replacement.
func (e *Editor) strReplaceIgnoreIndent(path, content, oldStr, newStr, displayPath string) Response {
	contentLines := strings.Split(content, "\n")
	strippedContent := make([]string, len(contentLines))
	for i, line := range contentLines {
		strippedContent[i] = strings.TrimSpace(line)
	}
	strippedOld := strings.Split(oldStr, "\n")
	for i, line := range strippedOld {
		strippedOld[i] = strings.TrimSpace(line)
	}

	var matches []int
	tail := ""
	for i := 0; i+len(strippedOld) <= len(strippedContent); i++ {
		ok := true
		rest := ""
		for j, pattern := range strippedOld {
			if j == len(strippedOld)-1 {
				if !strings.HasPrefix(strippedContent[i+j], pattern) {
					ok = false
					break
				}
				rest = strippedContent[i+j][len(pattern):]
			} else if strippedContent[i+j] != pattern {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, i)
			tail = rest
		}
	}

	if len(matches) == 0 {
		return respond(failf("No replacement was performed, old_str \n ```\n%s\n```\n did not appear in %s.", oldStr, displayPath))
	}
	if len(matches) > 1 {
		lines := make([]int, len(matches))
		for i, m := range matches {
			lines[i] = m + 1
		}
		return respond(failf("No replacement was performed. Multiple occurrences of old_str \n ```\n%s\n```\n starting at lines %v. Please ensure it is unique", oldStr, lines))
	}

	replacement := newStr + tail
	matchStart := matches[0]
	matchEnd := matchStart + len(strippedOld)
	indented := matchIndentByFirstLine(replacement, contentLines[matchStart])

	newLines := make([]string, 0, len(contentLines))
	newLines = append(newLines, contentLines[:matchStart]...)
	newLines = append(newLines, strings.Split(indented, "\n")...)
	newLines = append(newLines, contentLines[matchEnd:]...)
	newContent := strings.Join(newLines, "\n")

	e.pushHistory(path, content)
	if err := e.writeFile(path, newContent, displayPath); err != nil {
		return respond(err)
	}

	startLine := max(0, matchStart-snippetLines)
	endLine := matchStart + snippetLines + strings.Count(replacement, "\n")
	snippet := strings.Join(newLines[startLine:min(endLine+1, len(newLines))], "\n")

	msg := fmt.Sprintf("The file %s has been edited. ", displayPath)
	msg += makeOutput(snippet, fmt.Sprintf("a snippet of %s", displayPath), len(newLines), startLine+1)
	msg += "Review the changes and make sure they are as expected. Edit the file again if necessary."
	return Response{Success: true, Content: msg}
}
