// Package transcript decodes the response bodies of Whisper compatible
// transcription endpoints.
package transcript

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format is the response_format requested from the provider
type Format string

const (
	FormatJSON        Format = "json"
	FormatVerboseJSON Format = "verbose_json"
	FormatText        Format = "text"
	FormatSRT         Format = "srt"
	FormatVTT         Format = "vtt"
)

// Formats lists every supported response format
var Formats = []Format{FormatJSON, FormatVerboseJSON, FormatText, FormatSRT, FormatVTT}

// Valid reports whether f can be decoded
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Segment is a timed piece of the transcript
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is a decoded provider response. Duration is zero when the
// format carries no timing.
type Transcript struct {
	Format   Format
	Text     string
	Language string
	Duration time.Duration
	Segments []Segment
}

var (
	cueTiming   = regexp.MustCompile(`^(\d{1,2}:)?(\d{2}):(\d{2})[.,](\d{3})\s*-->\s*(\d{1,2}:)?(\d{2}):(\d{2})[.,](\d{3})`)
	cueSequence = regexp.MustCompile(`^\d+$`)
	cueTags     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// Parse decodes content produced with the given response format
func Parse(content []byte, format Format) (*Transcript, error) {
	switch format {
	case FormatJSON, FormatVerboseJSON:
		return parseJSON(content, format)
	case FormatText:
		return &Transcript{Format: FormatText, Text: strings.TrimSpace(string(content))}, nil
	case FormatSRT, FormatVTT:
		return parseCues(string(content), format), nil
	default:
		return nil, fmt.Errorf("unsupported transcript format: %s", format)
	}
}

type jsonResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func parseJSON(content []byte, format Format) (*Transcript, error) {
	var body jsonResponse
	if err := json.Unmarshal(content, &body); err != nil {
		return nil, fmt.Errorf("failed to parse JSON transcript: %w", err)
	}

	t := &Transcript{
		Format:   format,
		Text:     strings.TrimSpace(body.Text),
		Language: body.Language,
		Duration: seconds(body.Duration),
	}
	for _, seg := range body.Segments {
		t.Segments = append(t.Segments, Segment{
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if t.Duration == 0 && len(t.Segments) > 0 {
		t.Duration = t.Segments[len(t.Segments)-1].End
	}
	if t.Text == "" {
		t.Text = joinSegments(t.Segments)
	}
	return t, nil
}

// parseCues reads SRT and WebVTT bodies. A blank line ends a cue.
func parseCues(content string, format Format) *Transcript {
	t := &Transcript{Format: format}

	var current *Segment
	var text []string
	flush := func() {
		if current != nil && len(text) > 0 {
			current.Text = strings.Join(text, " ")
			t.Segments = append(t.Segments, *current)
		}
		current = nil
		text = text[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			flush()
		case current == nil && (strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE")):
		case current == nil && cueSequence.MatchString(line):
		case cueTiming.MatchString(line):
			flush()
			m := cueTiming.FindStringSubmatch(line)
			current = &Segment{
				Start: cueTime(m[1], m[2], m[3], m[4]),
				End:   cueTime(m[5], m[6], m[7], m[8]),
			}
		case current != nil:
			if cleaned := strings.TrimSpace(cueTags.ReplaceAllString(line, "")); cleaned != "" {
				text = append(text, cleaned)
			}
		}
	}
	flush()

	t.Text = joinSegments(t.Segments)
	if len(t.Segments) > 0 {
		t.Duration = t.Segments[len(t.Segments)-1].End
	}
	return t
}

// cueTime builds a duration from the optional hour and the mm ss mmm parts
func cueTime(hours, minutes, secs, millis string) time.Duration {
	h, _ := strconv.Atoi(strings.TrimSuffix(hours, ":"))
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(secs)
	ms, _ := strconv.Atoi(millis)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}
