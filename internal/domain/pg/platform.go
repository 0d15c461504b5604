package pg

import (
	"fmt"
	"runtime"
	"strings"
)

// OperatingSystem is a target OS of the published binaries.
type OperatingSystem string

// Operating systems published by the binaries repository.
const (
	OSDarwin      OperatingSystem = "darwin"
	OSWindows     OperatingSystem = "windows"
	OSLinux       OperatingSystem = "linux"
	OSAlpineLinux OperatingSystem = "alpine-linux"
)

// Architecture is a target CPU architecture of the published binaries.
type Architecture string

// Architectures published by the binaries repository.
const (
	ArchAmd64   Architecture = "amd64"
	ArchI386    Architecture = "i386"
	ArchArm32v6 Architecture = "arm32v6"
	ArchArm32v7 Architecture = "arm32v7"
	ArchArm64v8 Architecture = "arm64v8"
	ArchPpc64le Architecture = "ppc64le"
)

// DetectOperatingSystem maps runtime.GOOS onto a published OS.
// Anything that is neither linux nor windows falls back to darwin.
func DetectOperatingSystem() OperatingSystem {
	switch runtime.GOOS {
	case "linux":
		return OSLinux
	case "windows":
		return OSWindows
	default:
		return OSDarwin
	}
}

// DetectArchitecture maps runtime.GOARCH onto a published architecture.
func DetectArchitecture() Architecture {
	switch runtime.GOARCH {
	case "386":
		return ArchI386
	case "arm":
		return ArchArm32v7
	case "arm64":
		return ArchArm64v8
	case "ppc64le":
		return ArchPpc64le
	default:
		return ArchAmd64
	}
}

// RepositoryName returns the OS segment used in artifact names.
// Alpine binaries are published under "linux" with an arch suffix.
func (o OperatingSystem) RepositoryName() string {
	if o == OSAlpineLinux {
		return string(OSLinux)
	}

	return string(o)
}

// CacheName returns the OS segment used in the cache directory layout.
func (o OperatingSystem) CacheName() string {
	if o == OSAlpineLinux {
		return "linux-alpine"
	}

	return string(o)
}

// ParseOperatingSystem validates a configuration value.
func ParseOperatingSystem(s string) (OperatingSystem, error) {
	o := OperatingSystem(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case "":
		return DetectOperatingSystem(), nil
	case OSDarwin, OSWindows, OSLinux, OSAlpineLinux:
		return o, nil
	default:
		return "", fmt.Errorf("%w: unknown operating system %q", ErrGeneric, s)
	}
}

// ParseArchitecture validates a configuration value.
func ParseArchitecture(s string) (Architecture, error) {
	a := Architecture(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case "":
		return DetectArchitecture(), nil
	case ArchAmd64, ArchI386, ArchArm32v6, ArchArm32v7, ArchArm64v8, ArchPpc64le:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown architecture %q", ErrGeneric, s)
	}
}
