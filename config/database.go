package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaterializeCA writes the injected CA payload to DB.CAFile (mode 0600) and
// returns the path to use for TLS verification. It returns "" when no CA is
// configured. A CAFile without a payload is used as is if it exists.
func (c *Config) MaterializeCA() (string, error) {
	path := c.DB.CAFile
	if c.DB.CACert == "" {
		if path == "" {
			return "", nil
		}
		if _, err := os.Stat(path); err != nil {
			// Default path with nothing written: no CA.
			return "", nil
		}
		return path, nil
	}
	if path == "" {
		return "", fmt.Errorf("config: db.ca_file is empty but a CA payload is set")
	}

	pem := c.DB.CACert
	// CI secrets sometimes arrive with escaped newlines.
	if !strings.Contains(pem, "\n") {
		pem = strings.ReplaceAll(pem, `\n`, "\n")
	}
	if !strings.HasSuffix(pem, "\n") {
		pem += "\n"
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("config: ca dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(pem), 0o600); err != nil {
		return "", fmt.Errorf("config: write ca: %w", err)
	}
	return path, nil
}

// PostgresDSN builds a connection URL. With a CA path the server
// certificate is verified against it.
func (c *Config) PostgresDSN(caPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:   "/" + c.DB.Name,
	}

	q := url.Values{}
	mode := c.DB.SSLMode
	if mode == "" {
		mode = "prefer"
		if caPath != "" {
			mode = "verify-ca"
		}
	}
	q.Set("sslmode", mode)
	if caPath != "" {
		q.Set("sslrootcert", caPath)
	}
	q.Set("application_name", "stockwatch")
	u.RawQuery = q.Encode()
	return u.String()
}
