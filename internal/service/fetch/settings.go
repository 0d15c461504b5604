package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/oshokin/pg-embed/internal/domain/pg"
)

// Version is a published PostgreSQL binaries version.
type Version string

// Latest published versions per major release.
const (
	V17 Version = "17.2.0"
	V16 Version = "16.6.0"
	V15 Version = "15.10.0"
	V14 Version = "14.15.0"
	V13 Version = "13.18.0"
	V12 Version = "12.22.0"
)

const (
	// DefaultHost is Maven Central, where the binaries are published.
	DefaultHost = "https://repo1.maven.org"

	// artifactPathTemplate is the repository path of one artifact:
	// platform, version, platform, version.
	artifactPathTemplate = "/maven2/io/zonky/test/postgres/embedded-postgres-binaries-%[1]s/%[2]s/embedded-postgres-binaries-%[1]s-%[2]s.jar"
)

// Settings determine which binaries are fetched. They are never mutated by
// the cache or the lifecycle.
type Settings struct {
	// Host is the repository base URL.
	Host string
	// OperatingSystem is the target OS of the binaries.
	OperatingSystem pg.OperatingSystem
	// Architecture is the target CPU architecture of the binaries.
	Architecture pg.Architecture
	// Version is the PostgreSQL version.
	Version Version
}

// DefaultSettings returns settings for the host platform and the latest version.
func DefaultSettings() Settings {
	return Settings{
		Host:            DefaultHost,
		OperatingSystem: pg.DetectOperatingSystem(),
		Architecture:    pg.DetectArchitecture(),
		Version:         V17,
	}
}

// Platform returns the platform segment of artifact names, e.g.
// "linux-amd64" or "linux-amd64-alpine".
func (s Settings) Platform() string {
	arch := string(s.Architecture)
	if s.OperatingSystem == pg.OSAlpineLinux {
		arch += "-alpine"
	}

	return s.OperatingSystem.RepositoryName() + "-" + arch
}

// ArtifactName returns the file name the downloaded artifact is stored under.
func (s Settings) ArtifactName() string {
	return fmt.Sprintf("%s-%s.zip", s.Platform(), s.Version)
}

// URL assembles and validates the artifact download URL.
func (s Settings) URL() (string, error) {
	host := strings.TrimRight(strings.TrimSpace(s.Host), "/")
	if host == "" {
		host = DefaultHost
	}

	if s.Version == "" {
		return "", fmt.Errorf("%w: version is not set", pg.ErrInvalidURL)
	}

	raw := host + fmt.Sprintf(artifactPathTemplate, s.Platform(), s.Version)

	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", pg.ErrInvalidURL, raw, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", pg.ErrInvalidURL, parsed.Scheme)
	}

	return parsed.String(), nil
}
