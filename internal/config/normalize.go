package config

import "strings"

// normalize expands and cleans path fields and fills in zero values that have
// sensible fallbacks so validation can assume a fully-populated struct.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.ProfileDir) != "" {
		if c.Paths.ProfileDir, err = expandPath(c.Paths.ProfileDir); err != nil {
			return err
		}
	}

	c.SheerID.BaseURL = strings.TrimRight(strings.TrimSpace(c.SheerID.BaseURL), "/")
	c.DocGen.BaseURL = strings.TrimRight(strings.TrimSpace(c.DocGen.BaseURL), "/")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.SheerID.RequestTimeout <= 0 {
		c.SheerID.RequestTimeout = defaultSheerIDTimeout
	}
	if c.DocGen.RequestTimeout <= 0 {
		c.DocGen.RequestTimeout = defaultDocGenTimeout
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.RetryInitialSeconds <= 0 {
		c.Workflow.RetryInitialSeconds = defaultRetryInitialSeconds
	}
	if c.Workflow.RetryMaxSeconds <= 0 {
		c.Workflow.RetryMaxSeconds = defaultRetryMaxSeconds
	}
	if c.Workflow.StepTimeoutSeconds <= 0 {
		c.Workflow.StepTimeoutSeconds = defaultStepTimeoutSeconds
	}
	return nil
}
