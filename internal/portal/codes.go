package portal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

type codeEntry struct {
	Press string `yaml:"press" json:"press"`
	Code  string `yaml:"code" json:"code"`
}

// LoadSourceCodes reads the publisher table, a list of {press, code} entries
// in JSON or YAML. A publisher listed more than once maps to every code.
func LoadSourceCodes(path string) (harvest.SourceCodes, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source codes: %w", err)
	}
	return ParseSourceCodes(data)
}

// ParseSourceCodes decodes a publisher table. JSON input is accepted as YAML.
func ParseSourceCodes(data []byte) (harvest.SourceCodes, error) {
	var entries []codeEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode source codes: %w", err)
	}
	codes := make(harvest.SourceCodes, len(entries))
	for i, e := range entries {
		press, code := strings.TrimSpace(e.Press), strings.TrimSpace(e.Code)
		if press == "" || code == "" {
			return nil, fmt.Errorf("source code entry %d: press and code are required", i)
		}
		codes[press] = append(codes[press], code)
	}
	return codes, nil
}
