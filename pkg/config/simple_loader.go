package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file into cfg, expanding ${VAR_NAME}
// references from the environment first. Keys absent from the file keep
// whatever cfg already holds, so loading over DefaultConfig yields the
// effective configuration. Unknown keys are rejected, which catches
// option typos before a sync runs with silently dropped settings.
func Load(filePath string, cfg interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator's own flag
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// A file holding only comments or whitespace loads as empty.
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// expandEnv replaces each ${VAR_NAME} with the variable's value; unset
// variables expand to the empty string. Bare $VAR stays untouched so
// YAML values containing dollar signs survive expansion.
func expandEnv(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	for {
		start := strings.Index(content, "${")
		if start == -1 {
			b.WriteString(content)
			return b.String()
		}
		end := strings.IndexByte(content[start+2:], '}')
		if end == -1 {
			b.WriteString(content)
			return b.String()
		}
		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : start+2+end]))
		content = content[start+2+end+1:]
	}
}
