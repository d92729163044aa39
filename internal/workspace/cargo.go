package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/svcforge/internal/command"
)

// CargoLoader inspects a Cargo.toml by asking cargo itself for the package
// metadata, which resolves workspace membership and target lists without
// this tool re-implementing manifest semantics.
type CargoLoader struct{}

// Load implements ManifestLoader.
func (l *CargoLoader) Load(ctx context.Context, manifestPath string) ([]*Project, error) {
	var stdout, stderr bytes.Buffer
	err := command.Run(ctx, command.Invocation{
		Tool: "cargo",
		Args: []string{
			"metadata",
			"--manifest-path", manifestPath,
			"--no-deps",
			"--format-version=1",
		},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("inspect `%s`: %w (%s)", manifestPath, err, strings.TrimSpace(stderr.String()))
	}
	return parseCargoMetadata(stdout.Bytes(), manifestPath)
}

func parseCargoMetadata(data []byte, manifestPath string) ([]*Project, error) {
	var meta cargoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf(
			"unable to parse `%s`: %w. Are your service dependencies properly specified?",
			manifestPath, err)
	}

	var projects []*Project
	for _, pkg := range meta.Packages {
		proj := &Project{
			ManifestPath: pkg.ManifestPath,
			TargetDir:    meta.TargetDirectory,
			Kind:         KindRust,
		}
		for _, ct := range pkg.Targets {
			if len(ct.Kind) == 0 {
				continue
			}
			isBuildable := ct.Kind[0] == "bin"
			isTestable := ct.Kind[0] == "test"
			deps := make(map[string]*Dependency)
			if svc, ok := pkg.Metadata.Forge.Services[ct.Name]; ok {
				for name, loc := range svc.Dependencies {
					deps[name] = &Dependency{Location: loc.Location}
				}
			}
			if isTestable {
				for name, loc := range pkg.Metadata.Forge.DevDependencies {
					deps[name] = &Dependency{Location: loc.Location}
				}
			}
			proj.Targets = append(proj.Targets, &Target{
				Name: ct.Name,
				Path: ct.SrcPath,
				Phases: Phases{
					Build:  isBuildable,
					Test:   isBuildable || isTestable, // bins carry unit tests
					Deploy: false,                     // rust deploys are not yet supported
					Clean:  true,
				},
				Deps: deps,
			})
		}
		projects = append(projects, proj)
	}
	return projects, nil
}

type cargoMetadata struct {
	Packages        []cargoPackage `json:"packages"`
	TargetDirectory string         `json:"target_directory"`
}

type cargoPackage struct {
	Name         string               `json:"name"`
	Targets      []cargoTarget        `json:"targets"`
	ManifestPath string               `json:"manifest_path"`
	Metadata     cargoPackageMetadata `json:"metadata"`
}

type cargoTarget struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

type cargoPackageMetadata struct {
	Forge forgeMetadata `json:"forge"`
}

// forgeMetadata is `[package.metadata.forge]`: a `dev-dependencies` table
// plus one table per service target, each holding a `dependencies` table.
type forgeMetadata struct {
	DevDependencies map[string]locationSpec
	Services        map[string]forgeServiceMeta
}

type forgeServiceMeta struct {
	Dependencies map[string]locationSpec `json:"dependencies"`
}

func (m *forgeMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Services = make(map[string]forgeServiceMeta)
	for key, val := range raw {
		if key == "dev-dependencies" {
			if err := json.Unmarshal(val, &m.DevDependencies); err != nil {
				return err
			}
			continue
		}
		var svc forgeServiceMeta
		if err := json.Unmarshal(val, &svc); err != nil {
			return err
		}
		m.Services[key] = svc
	}
	return nil
}

// locationSpec accepts a dependency location written either as a bare
// string (URL when it carries a scheme, path otherwise) or as an explicit
// `{ "path": … }` / `{ "url": … }` table.
type locationSpec struct {
	Location Location
}

func (s *locationSpec) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if strings.Contains(str, "://") {
			s.Location = Location{URL: str}
		} else {
			s.Location = Location{Path: str}
		}
		return nil
	}
	var obj struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Location = Location{Path: obj.Path, URL: obj.URL}
	return nil
}
