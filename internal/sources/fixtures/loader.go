package fixtures

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of a fixture file.
type Loader struct {
	filePath string
}

// NewLoader creates a new fixture loader.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the fixture file.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read fixture file: %w", err)
	}

	data = expandVariables(data)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse fixture yaml: %w", err)
	}

	return f, nil
}

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandVariables substitutes ${NAME} with the environment value of NAME.
// Unset variables expand to an empty string.
// Example: jwt: ${BOUNTY_DEV_JWT} -> jwt: eyJ...
func expandVariables(data []byte) []byte {
	return variablePattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := variablePattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}
