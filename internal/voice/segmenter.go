package voice

import "strings"

// SegmentPlanner buffers streamed LLM text and cuts it into speakable
// segments at natural boundaries. The first segment is cut early so the
// caller hears audio as soon as possible.
type SegmentPlanner struct {
	buffer          string
	emittedAnyChunk bool
}

const (
	segmentFirstChunkMin = 24
	segmentNextChunkMin  = 42
	segmentCutWindow     = 44
)

func NewSegmentPlanner() *SegmentPlanner {
	return &SegmentPlanner{}
}

func (p *SegmentPlanner) Push(delta string) []string {
	if strings.TrimSpace(delta) == "" {
		return nil
	}
	p.buffer += delta
	return p.flush(false)
}

func (p *SegmentPlanner) Finalize() []string {
	return p.flush(true)
}

func (p *SegmentPlanner) flush(force bool) []string {
	var out []string
	for {
		minChars := segmentNextChunkMin
		if !p.emittedAnyChunk {
			minChars = segmentFirstChunkMin
		}
		segment, rest, ok := nextSpeechSegment(p.buffer, minChars, force)
		if !ok {
			break
		}
		p.buffer = rest
		segment = normalizeSpeechSegment(segment)
		if segment == "" {
			continue
		}
		p.emittedAnyChunk = true
		out = append(out, segment)
	}
	return out
}

func nextSpeechSegment(input string, minChars int, force bool) (segment, rest string, ok bool) {
	if input == "" {
		return "", "", false
	}
	if force {
		return input, "", true
	}
	if len(input) < minChars {
		return "", input, false
	}

	if idx := commaBoundary(input, minChars); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}
	if idx := punctuationBoundary(input, minChars); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}

	cut := whitespaceBoundary(input, minChars, segmentCutWindow)
	if cut <= 0 {
		return "", input, false
	}
	return input[:cut], input[cut:], true
}

func punctuationBoundary(input string, minChars int) int {
	for i := minChars - 1; i < len(input); i++ {
		switch input[i] {
		case '.', '!', '?', ';', ':', '\n':
			return i
		}
	}
	return -1
}

func commaBoundary(input string, minChars int) int {
	for i := minChars - 1; i < len(input); i++ {
		if input[i] == ',' {
			return i
		}
	}
	return -1
}

func whitespaceBoundary(input string, minChars int, window int) int {
	if len(input) <= minChars {
		return len(input)
	}
	limit := minChars + window
	if limit > len(input) {
		limit = len(input)
	}
	for i := minChars; i < limit; i++ {
		switch input[i] {
		case ' ', '\t', '\n', '\r':
			return i
		}
	}
	return minChars
}

func normalizeSpeechSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Fields(raw)
	return strings.TrimSpace(strings.Join(parts, " "))
}
