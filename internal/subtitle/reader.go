package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

// 00:02:16,612 --> 00:02:19,376 (some tools write a dot before the millis)
var timingRe = regexp.MustCompile(`(\d{2,}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2,}):(\d{2}):(\d{2})[,.](\d{3})`)

// ParseFile reads an SRT file from disk.
func ParseFile(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, errs.Newf(errs.Unsupported, "only SRT subtitle files are supported: %s", path)
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errs.Newf(errs.NotFound, "subtitle file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

// ReadSRTBytes parses SRT content held in memory.
func ReadSRTBytes(data []byte, path string) (*File, error) {
	return Parse(bytes.NewReader(data), path)
}

// Parse reads SRT entries. Entries without text are skipped.
func Parse(r io.Reader, path string) (*File, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)

	current := Line{}
	state := "index" // index, time, text
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			lines = append(lines, current)
		}
		current = Line{}
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			current.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := parseTiming(line)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", current.Index, err)
			}
			current.StartTime = start
			current.EndTime = end
			state = "text"

		case "text":
			if line == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if state == "text" {
		flush()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subtitle file: %w", err)
	}

	return &File{
		Path:     path,
		Lines:    lines,
		Language: detectLanguage(lines),
		Format:   "SRT",
	}, nil
}

func parseTiming(s string) (time.Duration, time.Duration, error) {
	m := timingRe.FindStringSubmatch(s)
	if len(m) != 9 {
		return 0, 0, errs.Newf(errs.InvalidTimestamp, "invalid time line: %q", s)
	}
	return toDuration(m[1:5]), toDuration(m[5:9]), nil
}

func toDuration(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

// detectLanguage returns the most frequent language over all lines.
func detectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, line := range lines {
		counts[whatlanggo.DetectLang(line.Text).Iso6391()]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top = lang
			topCount = count
		}
	}

	tag, err := language.Parse(top)
	if err != nil {
		return language.Und
	}
	return tag
}

// DetectLanguage guesses the language of free text.
func DetectLanguage(texts ...string) language.Tag {
	lines := make([]Line, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			lines = append(lines, Line{Text: t})
		}
	}
	return detectLanguage(lines)
}
