package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// Dump writes the effective configuration as YAML with secrets masked.
func Dump(w io.Writer, c *Config) error {
	out := *c
	mask(&out.DB.Password)
	mask(&out.DB.CACert)
	mask(&out.Telegram.Token)
	if out.DB.Driver == "" {
		out.DB.Driver = c.Driver()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("config: dump: %w", err)
	}
	return enc.Close()
}

func mask(s *string) {
	if *s != "" {
		*s = redacted
	}
}
