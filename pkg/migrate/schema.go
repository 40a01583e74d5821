package migrate

import (
	"fmt"
	"os"
)

// LoadSchema reads the destination schema DDL from disk. The schema is an
// external, versioned artifact; the engine applies it verbatim.
func LoadSchema(path string) (string, error) {
	ddl, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return string(ddl), nil
}
