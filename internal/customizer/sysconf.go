package customizer

import (
	"bufio"
	"bytes"
	"strings"
)

// sysconf is the key=value first-boot configuration file. Parsing keeps
// every original line, including comments and keys we do not manage, so a
// second customization of the same card is a clean merge rather than a
// rewrite.
type sysconf struct {
	lines []string
}

func parseSysconf(data []byte) *sysconf {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return &sysconf{lines: lines}
}

// set replaces the value of key in place, or appends the assignment when the
// key is not present.
func (s *sysconf) set(key, value string) {
	assignment := key + "=" + value
	for i, line := range s.lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, _, ok := strings.Cut(trimmed, "=")
		if ok && strings.TrimSpace(k) == key {
			s.lines[i] = assignment
			return
		}
	}
	s.lines = append(s.lines, assignment)
}

func (s *sysconf) serialize() []byte {
	if len(s.lines) == 0 {
		return nil
	}
	return []byte(strings.Join(s.lines, "\n") + "\n")
}
