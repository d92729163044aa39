package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NpmLoader inspects a package.json directly; unlike cargo there is no
// metadata tool to delegate to, and the fields this system needs are plain
// JSON.
type NpmLoader struct{}

type npmManifest struct {
	Name                string            `json:"name"`
	Scripts             map[string]string `json:"scripts"`
	DevDependencies     map[string]string `json:"devDependencies"`
	ServiceDependencies map[string]string `json:"serviceDependencies"`
}

// Load implements ManifestLoader. Aggregate packages (lerna roots) and
// packages with no usable lifecycle scripts produce no projects.
func (l *NpmLoader) Load(ctx context.Context, manifestPath string) ([]*Project, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("could not read file `%s`: %w", manifestPath, err)
	}
	var manifest npmManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unable to parse `%s`: %w", manifestPath, err)
	}

	if _, hasLerna := manifest.DevDependencies["lerna"]; hasLerna {
		return nil, nil // an aggregate; the subpackages declare themselves
	}

	phases := Phases{
		Build:  len(manifest.ServiceDependencies) > 0 || manifest.Scripts["build"] != "",
		Test:   manifest.Scripts["test"] != "",
		Deploy: manifest.Scripts["deploy"] != "",
		Clean:  manifest.Scripts["clean"] != "",
	}
	if phases == (Phases{}) {
		return nil, nil // nothing to be done for this package
	}

	manifestDir := filepath.Dir(manifestPath)
	deps := make(map[string]*Dependency)
	for name, loc := range manifest.ServiceDependencies {
		location, err := parseNpmLocation(manifestDir, loc)
		if err != nil {
			return nil, fmt.Errorf("`%s`: %w", manifestPath, err)
		}
		deps[name] = &Dependency{Location: location}
	}

	kind := KindJavaScript
	if pathExists(filepath.Join(manifestDir, "tsconfig.json")) {
		kind = KindTypeScript
	}

	return []*Project{{
		ManifestPath: manifestPath,
		TargetDir:    manifestDir,
		Kind:         kind,
		Targets: []*Target{{
			Name:   manifest.Name,
			Path:   manifestDir,
			Phases: phases,
			Deps:   deps,
		}},
	}}, nil
}

// parseNpmLocation maps a serviceDependencies value: `file:` locations are
// canonicalized against the manifest directory, anything else must be a
// well-formed URL.
func parseNpmLocation(manifestDir, loc string) (Location, error) {
	if rest, ok := strings.CutPrefix(loc, "file:"); ok {
		return Location{Path: canonicalizePath(manifestDir, rest)}, nil
	}
	if !strings.Contains(loc, "://") {
		return Location{}, fmt.Errorf("invalid import url `%s`", loc)
	}
	return Location{URL: loc}, nil
}
