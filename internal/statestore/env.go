package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/megaguards/mg-setup/internal/utils/logger"
)

// parseAssignment splits an active NAME=value line. Commented and blank
// lines are not assignments.
func parseAssignment(line string) (name, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	name, value, ok = strings.Cut(trimmed, "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}

func splitLines(data []byte) []string {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ReadVar returns the active value of name in the environment file.
func (s *Store) ReadVar(name string) (string, bool, error) {
	data, exists, err := s.read(s.EnvFile)
	if err != nil || !exists {
		return "", false, err
	}

	value, found := "", false
	for _, line := range splitLines(data) {
		if n, v, ok := parseAssignment(line); ok && n == name {
			value, found = v, true
		}
	}
	return value, found, nil
}

// Vars returns every active assignment in the environment file.
func (s *Store) Vars() (map[string]string, error) {
	data, _, err := s.read(s.EnvFile)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	for _, line := range splitLines(data) {
		if n, v, ok := parseAssignment(line); ok {
			vars[n] = v
		}
	}
	return vars, nil
}

// WriteVar records name=value and reports whether the file changed.
//
// An empty value, or a name already set in the live process environment, is
// left alone. A missing file is created with EnvHeader. An active line with
// a different value is disabled as "# NAME=old" before the new line is
// appended; under UpsertLegacy the new line is not appended.
func (s *Store) WriteVar(name, value string) (bool, error) {
	log := logger.Logger()

	if value == "" {
		return false, nil
	}
	if s.externallySet(name) {
		log.Debugf("%s is set in the environment, not recording it in %s", name, s.EnvFile)
		return false, nil
	}

	data, exists, err := s.read(s.EnvFile)
	if err != nil {
		return false, err
	}

	lines := splitLines(data)
	if !exists {
		lines = []string{EnvHeader}
	}

	present, disabled := false, false
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		n, v, ok := parseAssignment(line)
		if !ok || n != name {
			out = append(out, line)
			continue
		}
		if v == value {
			present = true
			out = append(out, line)
			continue
		}
		out = append(out, "# "+n+"="+v)
		disabled = true
	}

	if present && !disabled && exists {
		return false, nil
	}

	if !present {
		if disabled && s.Mode == UpsertLegacy {
			log.Warnf("%s had a different value in %s; old line disabled, new value not recorded (legacy upsert)", name, s.EnvFile)
		} else {
			out = append(out, name+"="+value)
			logger.Progress("adding %s to %s", value, s.EnvFile)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.EnvFile), 0755); err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := s.write(s.EnvFile, []byte(strings.Join(out, "\n")+"\n")); err != nil {
		return false, err
	}
	return true, nil
}
