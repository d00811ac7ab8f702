package core

import "fmt"

// Attachment is a debug file written next to the report for one step.
type Attachment struct {
	Name        string `json:"name"` // screenshot, hierarchy
	ContentType string `json:"contentType"`
	Path        string `json:"path"` // relative to the report directory
}

const (
	AttachmentScreenshot = "screenshot"
	AttachmentHierarchy  = "hierarchy"

	ContentTypePNG = "image/png"
	ContentTypeXML = "application/xml"
)

var attachmentExt = map[string]string{
	AttachmentScreenshot: ".png",
	AttachmentHierarchy:  ".xml",
}

// NewAttachment names the file for attachment kind of step stepIdx in flow
// flowIdx (both 0-based), e.g. flow-001-step-003-screenshot.png.
func NewAttachment(kind string, flowIdx, stepIdx int) Attachment {
	ct := ContentTypeXML
	if kind == AttachmentScreenshot {
		ct = ContentTypePNG
	}
	return Attachment{
		Name:        kind,
		ContentType: ct,
		Path:        fmt.Sprintf("flow-%03d-step-%03d-%s%s", flowIdx+1, stepIdx+1, kind, attachmentExt[kind]),
	}
}

// ArtifactConfig controls when and what artifacts are captured
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"`
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"`

	Screenshot  bool `yaml:"screenshot" json:"screenshot"`
	UIHierarchy bool `yaml:"uiHierarchy" json:"uiHierarchy"`
}

// DefaultArtifactConfig captures a screenshot and a dump for failed steps only.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		Screenshot:       true,
		UIHierarchy:      true,
	}
}

// ParseArtifactMode maps on-failure (or empty), always and never onto a
// config capturing both kinds.
func ParseArtifactMode(mode string) (ArtifactConfig, error) {
	cfg := DefaultArtifactConfig()
	switch mode {
	case "", "on-failure":
	case "always":
		cfg.CaptureOnSuccess = true
	case "never":
		cfg.CaptureOnFailure = false
	default:
		return cfg, ErrInvalidConfig.WithMessage(
			fmt.Sprintf("invalid artifacts mode %q (want on-failure, always or never)", mode))
	}
	return cfg, nil
}

// ShouldCapture reports whether a step ending in status gets artifacts.
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	switch {
	case status.IsFailure():
		return c.CaptureOnFailure
	case status == StatusPassed:
		return c.CaptureOnSuccess
	default:
		return false
	}
}
