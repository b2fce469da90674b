package todos

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the project config file looked up in the scan root.
const ConfigFile = ".todos.toml"

// DefaultMaxFileSize skips files larger than 1 MiB.
const DefaultMaxFileSize = 1 << 20

var (
	// ErrInvalidConfig indicates a malformed .todos.toml.
	ErrInvalidConfig = errors.New("invalid todos config")

	// DefaultMarkers are the recognized comment markers.
	DefaultMarkers = []string{"TODO", "FIXME", "HACK", "XXX", "BUG", "NOTE", "OPTIMIZE"}

	// DefaultExtensions are the scanned file extensions.
	DefaultExtensions = []string{
		".go", ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".vue", ".svelte",
		".py", ".rb", ".rs", ".java", ".kt", ".c", ".h", ".cpp", ".hpp", ".cs",
		".php", ".swift", ".sh", ".bash", ".sql", ".yaml", ".yml", ".toml",
		".html", ".css", ".scss", ".md", ".lua",
	}
)

// Config controls a scan.
type Config struct {
	Markers     []string `toml:"markers"`
	Extensions  []string `toml:"extensions"`
	Exclude     []string `toml:"exclude"`
	MaxFileSize int64    `toml:"max_file_size"`
}

// DefaultConfig returns the built-in scan configuration.
func DefaultConfig() Config {
	return Config{
		Markers:     append([]string(nil), DefaultMarkers...),
		Extensions:  append([]string(nil), DefaultExtensions...),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// LoadConfig reads root/.todos.toml over the defaults. A missing file is
// not an error.
func LoadConfig(root string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(root, ConfigFile)

	var file Config
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if len(file.Markers) > 0 {
		cfg.Markers = file.Markers
	}
	if len(file.Extensions) > 0 {
		cfg.Extensions = file.Extensions
	}
	cfg.Exclude = file.Exclude
	if file.MaxFileSize > 0 {
		cfg.MaxFileSize = file.MaxFileSize
	}
	return cfg, cfg.Validate()
}

// Validate normalizes extensions and rejects unusable markers.
func (c *Config) Validate() error {
	if len(c.Markers) == 0 {
		return fmt.Errorf("%w: no markers", ErrInvalidConfig)
	}
	for _, m := range c.Markers {
		if m == "" || strings.IndexFunc(m, func(r rune) bool {
			return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
		}) >= 0 {
			return fmt.Errorf("%w: marker %q must be alphanumeric", ErrInvalidConfig, m)
		}
	}
	for i, ext := range c.Extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			c.Extensions[i] = "." + ext
		}
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	return nil
}
