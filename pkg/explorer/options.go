package explorer

import (
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/collab"
	"github.com/vishnualpha/sensuQ-sub001/internal/credstore"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
	"github.com/vishnualpha/sensuQ-sub001/internal/scope"
)

// Option is a functional option for configuring the Explorer.
type Option func(*Explorer) error

// WithTarget sets the seed URL.
func WithTarget(url string) Option {
	return func(e *Explorer) error {
		e.config.Target = url
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(e *Explorer) error {
		if depth < 0 {
			depth = 0
		}
		e.config.MaxDepth = depth
		return nil
	}
}

// WithMaxPages caps the pages recorded per run.
func WithMaxPages(n int) Option {
	return func(e *Explorer) error {
		if n < 1 {
			n = 1
		}
		e.config.MaxPages = n
		return nil
	}
}

// WithParallelCrawls caps the per-level browser pool.
func WithParallelCrawls(n int) Option {
	return func(e *Explorer) error {
		if n < 1 {
			n = 1
		}
		e.config.MaxParallelCrawls = n
		return nil
	}
}

// WithStatePath sets the bbolt database file.
func WithStatePath(path string) Option {
	return func(e *Explorer) error {
		e.config.StatePath = path
		return nil
	}
}

// WithScreenshotDir enables screenshot persistence.
func WithScreenshotDir(dir string) Option {
	return func(e *Explorer) error {
		e.config.ScreenshotDir = dir
		return nil
	}
}

// WithScope sets the scope rules.
func WithScope(rules scope.Rules) Option {
	return func(e *Explorer) error {
		e.config.Scope = rules
		return nil
	}
}

// WithRateLimit sets the navigation rate limit.
func WithRateLimit(rps float64, burst int, hostDelay time.Duration) Option {
	return func(e *Explorer) error {
		e.config.RateLimit = RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
			HostDelay:         hostDelay,
		}
		return nil
	}
}

// WithBrowserConfig sets the browser configuration.
func WithBrowserConfig(cfg browser.Config) Option {
	return func(e *Explorer) error {
		e.config.Browser = cfg
		return nil
	}
}

// WithProvider selects the LLM collaborator backend.
func WithProvider(name, model string) Option {
	return func(e *Explorer) error {
		e.config.Provider = ProviderConfig{Name: name, Model: model}
		return nil
	}
}

// WithCredentials sets a single username/password pair for every host.
func WithCredentials(username, password string) Option {
	return func(e *Explorer) error {
		e.config.Credentials.Username = username
		e.config.Credentials.Password = password
		return nil
	}
}

// WithCredentialBlob sets a JSON (or base64 JSON) host credential map.
func WithCredentialBlob(blob string) Option {
	return func(e *Explorer) error {
		e.config.Credentials.Blob = blob
		return nil
	}
}

// WithCredentialStore injects a credential store directly.
func WithCredentialStore(s credstore.Store) Option {
	return func(e *Explorer) error {
		e.creds = s
		return nil
	}
}

// WithIdentifier injects an element identifier, replacing the default.
func WithIdentifier(id collab.ElementIdentifier) Option {
	return func(e *Explorer) error {
		e.identifier = id
		return nil
	}
}

// WithPlanner injects a scenario planner.
func WithPlanner(p collab.ScenarioPlanner) Option {
	return func(e *Explorer) error {
		e.planner = p
		return nil
	}
}

// WithFailureAdapter injects a failure adapter.
func WithFailureAdapter(a collab.FailureAdapter) Option {
	return func(e *Explorer) error {
		e.adapter = a
		return nil
	}
}

// WithLaunchFunc overrides browser session launching. Used by tests.
func WithLaunchFunc(fn browser.LaunchFunc) Option {
	return func(e *Explorer) error {
		e.launch = fn
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Explorer) error {
		e.log = l
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(e *Explorer) error {
		e.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(e *Explorer) error {
		e.config.Debug = debug
		return nil
	}
}

// WithProgressAddr serves the WebSocket progress stream on addr.
func WithProgressAddr(addr string) Option {
	return func(e *Explorer) error {
		e.config.ProgressAddr = addr
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(config *Config) Option {
	return func(e *Explorer) error {
		e.config = config
		return nil
	}
}
