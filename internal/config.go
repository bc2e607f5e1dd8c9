package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/contentcache"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/schedule"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store modes.
const (
	StoreModeGitHub = "github"
	StoreModeLocal  = "local"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	GitHub     GitHubConfig      `yaml:"github"`
	Store      StoreConfig       `yaml:"store"`
	State      StateConfig       `yaml:"state"`
	Navigation NavigationConfig  `yaml:"navigation"`
	Sync       SyncConfig        `yaml:"sync"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Store.Mode == StoreModeGitHub {
		if err := c.GitHub.Validate(); err != nil {
			return fmt.Errorf("github: %w", err)
		}
	}
	if err := c.State.Validate(); err != nil {
		return err
	}
	if err := c.Navigation.Validate(); err != nil {
		return fmt.Errorf("navigation: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GitHubConfig identifies the content repository.
type GitHubConfig struct {
	APIURL string `yaml:"api_url"`
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token"`
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Token, validation.Required),
	)
}

// StoreConfig selects the remote content store. The local mode keeps one
// directory per branch under LocalPath and is meant for development.
type StoreConfig struct {
	Mode          string `yaml:"mode"`
	LocalPath     string `yaml:"local_path"`
	DefaultBranch string `yaml:"default_branch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(StoreModeGitHub, StoreModeLocal)),
		validation.Field(&c.LocalPath, validation.When(c.Mode == StoreModeLocal, validation.Required)),
		validation.Field(&c.DefaultBranch, validation.Required),
	)
}

// StateConfig holds the SQLite file backing drafts and caches.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NavigationConfig locates the navigation blob and page files.
type NavigationConfig struct {
	BlobPath       string   `yaml:"blob_path"`
	ContentRoot    string   `yaml:"content_root"`
	LockedPatterns []string `yaml:"locked_patterns"`
}

// Validate validates the navigation configuration.
func (c *NavigationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BlobPath, validation.Required),
		validation.Field(&c.ContentRoot, validation.Required),
	)
}

// SyncConfig holds the synchronization timings.
type SyncConfig struct {
	StalenessWindow  time.Duration `yaml:"staleness_window"`
	GraceWindow      time.Duration `yaml:"grace_window"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ConfirmInterval  time.Duration `yaml:"confirm_interval"`
	ConfirmAttempts  int           `yaml:"confirm_attempts"`
	ContentCacheSize int           `yaml:"content_cache_size"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StalenessWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.GraceWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ConfirmInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ConfirmAttempts, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.ContentCacheSize, validation.Required, validation.Min(1)),
	)
}

// ConfirmPolicy returns the branch confirmation policy.
func (c *SyncConfig) ConfirmPolicy() schedule.Policy {
	return schedule.Policy{Attempts: c.ConfirmAttempts, Interval: c.ConfirmInterval}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	policy := schedule.DefaultPolicy()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		GitHub: GitHubConfig{
			APIURL: remote.DefaultAPIURL,
		},
		Store: StoreConfig{
			Mode:          StoreModeGitHub,
			LocalPath:     "./content-store",
			DefaultBranch: "main",
		},
		State: StateConfig{
			Path: "./folio.db",
		},
		Navigation: NavigationConfig{
			BlobPath:    navsync.DefaultBlobPath,
			ContentRoot: "content",
		},
		Sync: SyncConfig{
			StalenessWindow:  navsync.DefaultStalenessWindow,
			GraceWindow:      navsync.DefaultGraceWindow,
			PollInterval:     contentcache.DefaultPollInterval,
			ConfirmInterval:  policy.Interval,
			ConfirmAttempts:  policy.Attempts,
			ContentCacheSize: 512,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
