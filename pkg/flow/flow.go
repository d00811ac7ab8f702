// Package flow handles parsing and representation of adbauto YAML flow files.
package flow

// Flow represents a parsed flow file.
type Flow struct {
	SourcePath string // Path to the source file
	Config     Config // Flow configuration (appId, tags, etc.)
	Steps      []Step // Steps to execute
}

// Config represents flow-level configuration.
type Config struct {
	AppID string            `yaml:"appId"`
	Name  string            `yaml:"name"`
	Tags  []string          `yaml:"tags"`
	Env   map[string]string `yaml:"env"`
}

// DisplayName returns the configured name, falling back to the source path.
func (f *Flow) DisplayName() string {
	if f.Config.Name != "" {
		return f.Config.Name
	}
	return f.SourcePath
}

// MatchesTags reports whether the flow carries at least one include tag
// (when any are given) and none of the exclude tags.
func (f *Flow) MatchesTags(include, exclude []string) bool {
	tags := make(map[string]bool, len(f.Config.Tags))
	for _, t := range f.Config.Tags {
		tags[t] = true
	}
	for _, t := range exclude {
		if tags[t] {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, t := range include {
		if tags[t] {
			return true
		}
	}
	return false
}
