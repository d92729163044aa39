package workspace

// ProjectKind discriminates how a project is built.
type ProjectKind int

const (
	// KindRust is a compiled-language package built through cargo.
	KindRust ProjectKind = iota
	// KindJavaScript is a scripted package driven by its npm scripts.
	KindJavaScript
	// KindTypeScript is KindJavaScript with a tsconfig.json present.
	KindTypeScript
	// KindWasm is a bare precompiled module supplied directly by path.
	KindWasm
)

func (k ProjectKind) String() string {
	switch k {
	case KindRust:
		return "rust"
	case KindJavaScript:
		return "javascript"
	case KindTypeScript:
		return "typescript"
	case KindWasm:
		return "wasm"
	default:
		return "unknown"
	}
}

// Phases records which lifecycle actions a target supports.
type Phases struct {
	Build  bool
	Test   bool
	Deploy bool
	Clean  bool
}

// Project is one discovered build-manifest unit. It is immutable after
// discovery except for its targets' dependency bindings.
type Project struct {
	// ManifestPath is the absolute path of the manifest that declared the
	// project (for KindWasm, the module file itself).
	ManifestPath string
	// TargetDir is where the project's build tool places its output.
	TargetDir string
	Kind      ProjectKind
	Targets   []*Target
}

// Target is one named, independently buildable unit within a project.
// Names are unique within their project but not across the workspace.
type Target struct {
	Name string
	// Path is the target's source location; directory selection matches
	// against it.
	Path   string
	Phases Phases
	// Deps maps dependency name to its binding. Bindings start unresolved
	// and are rebound exactly once during build-plan construction.
	Deps map[string]*Dependency
}

// Location names another target by filesystem path or by URL. Exactly one
// field is set. URL locations point outside the workspace and cannot be
// resolved by it.
type Location struct {
	Path string
	URL  string
}

// Dependency is the binding of a dependency name to a concrete target.
// Ref is nil until resolution binds it; binding is memoized.
type Dependency struct {
	Location Location
	Ref      *TargetRef
}

// ProjectRef is a stable arena index into the workspace's project list.
type ProjectRef int

// TargetRef addresses one target within one project. Refs stay valid for
// the life of the workspace because projects are append-only.
type TargetRef struct {
	Project ProjectRef
	Target  int
}

// Status is the tri-state dependency-resolution marker used for cycle
// detection. It only ever moves forward.
type Status int

const (
	StatusUnresolved Status = iota
	StatusVisited
	StatusResolved
)
