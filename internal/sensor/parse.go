package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Reading is one line of a recorded sensor stream.
type Reading struct {
	Line  int
	Value float64
}

// ParseValues reads one float per line. Blank lines and lines starting with
// '#' are skipped.
func ParseValues(r io.Reader) ([]Reading, error) {
	var out []Reading

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid sensor value %q: %w", line, text, err)
		}
		out = append(out, Reading{Line: line, Value: v})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensor values: %w", err)
	}

	return out, nil
}

// Replay publishes readings to p, waiting gap between each. It stops early
// when ctx is cancelled and returns the number of readings published.
func Replay(ctx context.Context, p Publisher, readings []Reading, gap time.Duration) int {
	sent := 0
	for _, rd := range readings {
		if ctx.Err() != nil {
			return sent
		}
		p.Publish(rd.Value)
		sent++

		if gap > 0 {
			select {
			case <-ctx.Done():
				return sent
			case <-time.After(gap):
			}
		}
	}
	return sent
}
