package workflow

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
)

//go:embed profiles/*.toml
var embeddedProfiles embed.FS

// LoadProfiles returns the built-in profile definitions overlaid with any
// TOML files found in dir. A file whose profile name matches a built-in
// replaces it. An empty dir loads only the built-ins.
func LoadProfiles(dir string) (map[string]*Definition, error) {
	defs := make(map[string]*Definition)

	entries, err := embeddedProfiles.ReadDir("profiles")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		data, err := embeddedProfiles.ReadFile("profiles/" + entry.Name())
		if err != nil {
			return nil, err
		}
		def, err := Parse(data)
		if err != nil {
			return nil, err
		}
		defs[def.Profile] = def
	}

	if strings.TrimSpace(dir) == "" {
		return defs, nil
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return defs, nil
		}
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".toml") {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, err
		}
		defs[def.Profile] = def
	}
	return defs, nil
}
