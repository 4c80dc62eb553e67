// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content.
// OldNum and NewNum are 1-based; 0 means the line is absent on that side.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Stats counts changed lines
type Stats struct {
	Additions int
	Deletions int
	Changes   int
}

// Result contains the complete diff information
type Result struct {
	Hunks []Hunk
	Stats Stats
	// Binary is set when either side holds a NUL byte; no hunks are computed then.
	Binary bool
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	result := &Result{}
	if bytes.IndexByte(oldContent, 0) >= 0 || bytes.IndexByte(newContent, 0) >= 0 {
		result.Binary = !bytes.Equal(oldContent, newContent)
		return result
	}

	script := editScript(splitLines(oldContent), splitLines(newContent))
	result.Hunks = e.group(script)

	for _, l := range script {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result
}

// DiffStrings is Diff for string contents.
func (e *Engine) DiffStrings(oldContent, newContent string) *Result {
	return e.Diff([]byte(oldContent), []byte(newContent))
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

// maxTableCells bounds the LCS table built for the differing middle of two
// contents. A larger middle is emitted as a plain replacement.
const maxTableCells = 1 << 22

// editScript emits every line of both sides in order. Common leading and
// trailing lines are context; the rest comes from an LCS over what remains.
func editScript(oldLines, newLines [][]byte) []Line {
	pre := 0
	for pre < len(oldLines) && pre < len(newLines) && bytes.Equal(oldLines[pre], newLines[pre]) {
		pre++
	}
	suf := 0
	for suf < len(oldLines)-pre && suf < len(newLines)-pre &&
		bytes.Equal(oldLines[len(oldLines)-1-suf], newLines[len(newLines)-1-suf]) {
		suf++
	}

	script := make([]Line, 0, len(oldLines)+len(newLines)-pre-suf)
	for k := 0; k < pre; k++ {
		script = append(script, Line{Type: Context, Content: string(oldLines[k]), OldNum: k + 1, NewNum: k + 1})
	}
	script = append(script, middle(oldLines[pre:len(oldLines)-suf], newLines[pre:len(newLines)-suf], pre)...)
	for k := suf; k > 0; k-- {
		i, j := len(oldLines)-k, len(newLines)-k
		script = append(script, Line{Type: Context, Content: string(oldLines[i]), OldNum: i + 1, NewNum: j + 1})
	}
	return script
}

// middle diffs two runs of lines that start after offset common lines.
func middle(oldLines, newLines [][]byte, offset int) []Line {
	var script []Line
	width := len(newLines) + 1
	if len(oldLines) == 0 || len(newLines) == 0 || (len(oldLines)+1)*width > maxTableCells {
		for i, l := range oldLines {
			script = append(script, Line{Type: Deletion, Content: string(l), OldNum: offset + i + 1})
		}
		for j, l := range newLines {
			script = append(script, Line{Type: Addition, Content: string(l), NewNum: offset + j + 1})
		}
		return script
	}

	// lcs[i*width+j] is the LCS length of oldLines[i:] and newLines[j:]
	lcs := make([]int32, (len(oldLines)+1)*width)
	for i := len(oldLines) - 1; i >= 0; i-- {
		for j := len(newLines) - 1; j >= 0; j-- {
			if bytes.Equal(oldLines[i], newLines[j]) {
				lcs[i*width+j] = lcs[(i+1)*width+j+1] + 1
			} else {
				lcs[i*width+j] = max(lcs[(i+1)*width+j], lcs[i*width+j+1])
			}
		}
	}

	i, j := 0, 0
	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i < len(oldLines) && j < len(newLines) && bytes.Equal(oldLines[i], newLines[j]):
			script = append(script, Line{Type: Context, Content: string(oldLines[i]), OldNum: offset + i + 1, NewNum: offset + j + 1})
			i++
			j++
		case j == len(newLines) || (i < len(oldLines) && lcs[(i+1)*width+j] >= lcs[i*width+j+1]):
			script = append(script, Line{Type: Deletion, Content: string(oldLines[i]), OldNum: offset + i + 1})
			i++
		default:
			script = append(script, Line{Type: Addition, Content: string(newLines[j]), NewNum: offset + j + 1})
			j++
		}
	}
	return script
}

// group cuts the script into hunks. Changes separated by at most twice the
// context length share a hunk.
func (e *Engine) group(script []Line) []Hunk {
	var hunks []Hunk
	n := len(script)
	for k := 0; k < n; {
		if script[k].Type == Context {
			k++
			continue
		}

		start := max(0, k-e.contextLines)
		end := k + 1
		for {
			next := end
			for next < n && script[next].Type == Context {
				next++
			}
			if next == n || next-end > 2*e.contextLines {
				break
			}
			end = next + 1
		}
		stop := min(n, end+e.contextLines)

		hunks = append(hunks, newHunk(script, start, stop))
		k = stop
	}
	return hunks
}

func newHunk(script []Line, start, stop int) Hunk {
	h := Hunk{Lines: append([]Line(nil), script[start:stop]...)}

	// position of the hunk on each side: the last line numbers seen before it
	oldPos, newPos := 0, 0
	for _, l := range script[:start] {
		oldPos = max(oldPos, l.OldNum)
		newPos = max(newPos, l.NewNum)
	}
	for _, l := range h.Lines {
		if l.Type != Addition {
			h.OldLines++
		}
		if l.Type != Deletion {
			h.NewLines++
		}
	}
	h.OldStart, h.NewStart = oldPos, newPos
	if h.OldLines > 0 {
		h.OldStart++
	}
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}

// Format returns the diff in unified form
func (r *Result) Format() string {
	if r.Binary {
		return "binary contents differ\n"
	}

	var buf bytes.Buffer
	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			buf.WriteString(line.Type.Prefix())
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// Prefix is the unified-diff marker for the line type.
func (t LineType) Prefix() string {
	switch t {
	case Addition:
		return "+"
	case Deletion:
		return "-"
	default:
		return " "
	}
}
