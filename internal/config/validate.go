package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		problems = append(problems, "paths.api_bind must not be empty")
	}

	if c.SheerID.BaseURL == "" {
		problems = append(problems, "sheerid.base_url must not be empty")
	} else if !validHTTPURL(c.SheerID.BaseURL) {
		problems = append(problems, fmt.Sprintf("sheerid.base_url %q is not a valid http(s) URL", c.SheerID.BaseURL))
	}

	if c.DocGen.Enabled {
		if c.DocGen.BaseURL == "" {
			problems = append(problems, "docgen.base_url must be set when docgen is enabled")
		} else if !validHTTPURL(c.DocGen.BaseURL) {
			problems = append(problems, fmt.Sprintf("docgen.base_url %q is not a valid http(s) URL", c.DocGen.BaseURL))
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}

func validHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
