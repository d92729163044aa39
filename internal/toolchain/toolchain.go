// Package toolchain resolves and installs pinned releases of the platform
// build tools. Releases live in a public bucket keyed by
// `<platform>/<channel>/<release>/<tool>`; the named release (or the newest
// key on the requested channel) is downloaded into the user data directory.
package toolchain

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/svcforge/internal/config"
	"github.com/vk/svcforge/internal/ctxlog"
)

// ToolsURL is the release bucket index.
const ToolsURL = "https://tools.forge.dev"

// toolsBaseURL is swapped out by tests.
var toolsBaseURL = ToolsURL

// UnknownToolchainError is returned for version strings that are neither a
// channel alias nor a `YY.WW` release name.
type UnknownToolchainError struct {
	Version string
}

func (e *UnknownToolchainError) Error() string {
	return fmt.Sprintf("unknown toolchain version: `%s`", e.Version)
}

// Version selects a release: a channel alias or an exact name.
type Version struct {
	// Unstable selects the `current` channel instead of `release`.
	Unstable bool
	// Name is the exact `YY.WW` release, empty for "newest on channel".
	Name string
}

var releaseNameRe = regexp.MustCompile(`^([0-9]{2})\.([0-9]{1,2})$`)

// ParseVersion accepts `latest`, `latest-unstable`, or `YY.WW`.
func ParseVersion(version string) (Version, error) {
	switch version {
	case "latest":
		return Version{}, nil
	case "latest-unstable":
		return Version{Unstable: true}, nil
	}
	m := releaseNameRe.FindStringSubmatch(version)
	if m == nil {
		return Version{}, &UnknownToolchainError{Version: version}
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if year < 19 || year > time.Now().Year()%100 || week < 1 || week > 54 {
		return Version{}, &UnknownToolchainError{Version: version}
	}
	return Version{Name: version}, nil
}

func (v Version) channel() string {
	if v.Unstable {
		return "current"
	}
	return "release"
}

// platform maps the runtime OS onto the bucket's platform component.
func platform() string {
	if runtime.GOOS == "darwin" {
		return "darwin"
	}
	return "linux"
}

// Release is one installable toolchain version.
type Release struct {
	Name  string
	Tools []Tool
}

// Tool is one downloadable binary within a release.
type Tool struct {
	Name string
	Key  string
}

// bucket listing, S3 style.
type listBucketResult struct {
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

// Resolve fetches the bucket index and selects the release matching the
// version on this platform.
func Resolve(ctx context.Context, v Version) (*Release, error) {
	client := resty.New().SetTimeout(30 * time.Second)
	defer client.Close()

	res, err := client.R().SetContext(ctx).Get(toolsBaseURL)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to fetch tool versions; try checking https://status.forge.dev: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf(
			"unable to fetch tool versions; try checking https://status.forge.dev: server returned %d",
			res.StatusCode())
	}
	var listing listBucketResult
	if err := xml.Unmarshal(res.Bytes(), &listing); err != nil {
		return nil, fmt.Errorf("malformed tool listing: %w", err)
	}

	releases := make(map[string][]Tool)
	prefix := platform() + "/" + v.channel() + "/"
	for _, c := range listing.Contents {
		rest, ok := strings.CutPrefix(c.Key, prefix)
		if !ok {
			continue
		}
		name, tool, ok := strings.Cut(rest, "/")
		if !ok || tool == "" {
			continue
		}
		releases[name] = append(releases[name], Tool{Name: tool, Key: c.Key})
	}
	if len(releases) == 0 {
		return nil, &UnknownToolchainError{Version: v.channel()}
	}

	name := v.Name
	if name == "" {
		names := make([]string, 0, len(releases))
		for n := range releases {
			names = append(names, n)
		}
		sort.Strings(names)
		name = names[len(names)-1]
	}
	tools, ok := releases[name]
	if !ok {
		return nil, &UnknownToolchainError{Version: name}
	}
	return &Release{Name: name, Tools: tools}, nil
}

// Set installs the release named by version and records it as current.
func Set(ctx context.Context, version string) error {
	logger := ctxlog.FromContext(ctx)
	v, err := ParseVersion(version)
	if err != nil {
		return err
	}
	release, err := Resolve(ctx, v)
	if err != nil {
		return err
	}

	binDir, err := installDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	client := resty.New().SetTimeout(5 * time.Minute)
	defer client.Close()
	for _, tool := range release.Tools {
		logger.Info("Downloading tool.", "tool", tool.Name, "release", release.Name)
		res, err := client.R().SetContext(ctx).Get(toolsBaseURL + "/" + tool.Key)
		if err != nil {
			return fmt.Errorf("download `%s`: %w", tool.Name, err)
		}
		if !res.IsSuccess() {
			return fmt.Errorf("download `%s`: server returned %d", tool.Name, res.StatusCode())
		}
		dest := filepath.Join(binDir, tool.Name)
		if err := os.WriteFile(dest, res.Bytes(), 0o755); err != nil {
			return err
		}
	}

	marker, err := markerPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(marker, []byte(release.Name+"\n"), 0o644); err != nil {
		return err
	}
	logger.Info("Toolchain installed.", "release", release.Name)
	return nil
}

// InstalledRelease reads the recorded toolchain release name, if any.
func InstalledRelease() (string, bool) {
	marker, err := markerPath()
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(string(data))
	return name, name != ""
}

func installDir() (string, error) {
	data, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "bin"), nil
}

func markerPath() (string, error) {
	data, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "toolchain"), nil
}
