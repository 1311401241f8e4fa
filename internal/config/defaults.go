package config

const (
	defaultDataDir             = "~/.local/share/veriflow/data"
	defaultLogDir              = "~/.local/share/veriflow/logs"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultSheerIDBaseURL      = "https://services.sheerid.com"
	defaultSheerIDTimeout      = 30
	defaultDocGenTimeout       = 60
	defaultMaxAttempts         = 3
	defaultRetryInitialSeconds = 1
	defaultRetryMaxSeconds     = 30
	defaultStepTimeoutSeconds  = 45
	defaultNtfyRequestTimeout  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		SheerID: SheerID{
			BaseURL:        defaultSheerIDBaseURL,
			RequestTimeout: defaultSheerIDTimeout,
		},
		DocGen: DocGen{
			RequestTimeout: defaultDocGenTimeout,
		},
		Workflow: Workflow{
			MaxAttempts:         defaultMaxAttempts,
			RetryInitialSeconds: defaultRetryInitialSeconds,
			RetryMaxSeconds:     defaultRetryMaxSeconds,
			StepTimeoutSeconds:  defaultStepTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Started:        false,
			Approved:       true,
			Review:         true,
			Rejected:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
