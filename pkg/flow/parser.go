package flow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses YAML flow content. A header document (appId, name, env) may
// precede the step list, separated by "---".
func Parse(data []byte, sourcePath string) (*Flow, error) {
	parts := splitYAMLDocuments(string(data))

	flow := &Flow{
		SourcePath: sourcePath,
	}

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}

	if len(parts) == 1 {
		if err := parseSteps(parts[0], flow); err != nil {
			return nil, err
		}
	} else {
		if err := parseConfig(parts[0], flow); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], flow); err != nil {
			return nil, err
		}
	}

	return flow, nil
}

func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseConfig(content string, flow *Flow) error {
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}
	flow.Config = config
	return nil
}

func parseSteps(content string, flow *Flow) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawSteps); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for _, node := range rawSteps {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		flow.Steps = append(flow.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Handle scalar nodes like "- back" (no colon, no params)
	if node.Kind == yaml.ScalarNode {
		stepType := node.Value
		if !isStepType(stepType) {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("unknown step type: %s", stepType),
			}
		}
		emptyNode := &yaml.Node{Kind: yaml.MappingNode}
		return decodeStep(StepType(stepType), emptyNode, sourcePath)
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or command name",
		}
	}

	stepType, valueNode := extractStepType(node)
	if stepType == "" || valueNode == nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "unknown step type",
		}
	}

	return decodeStep(StepType(stepType), valueNode, sourcePath)
}

func extractStepType(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isStepType(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isStepType(key string) bool {
	_, ok := stepDecoders[StepType(key)]
	return ok
}

// typedStep is implemented by every step through its embedded BaseStep.
type typedStep interface {
	Step
	setType(StepType)
}

func (b *BaseStep) setType(t StepType) { b.StepType = t }

type stepDecoder func(node *yaml.Node) (Step, error)

// shorthand decodes a step that is either a mapping or a single scalar
// ("- tapOn: Login"). scalar fills the scalar form; check validates the
// result. Either may be nil.
func shorthand[T any, P interface {
	*T
	typedStep
}](t StepType, scalar func(P, string) error, check func(P) error) stepDecoder {
	return func(node *yaml.Node) (Step, error) {
		s := P(new(T))
		switch {
		case node.Kind == yaml.ScalarNode && scalar != nil:
			if err := scalar(s, node.Value); err != nil {
				return nil, err
			}
		case node.Kind != yaml.ScalarNode:
			if err := node.Decode(s); err != nil {
				return nil, err
			}
		}
		if check != nil {
			if err := check(s); err != nil {
				return nil, err
			}
		}
		s.setType(t)
		return s, nil
	}
}

func required(step StepType, field, value string) error {
	if value == "" {
		return fmt.Errorf("%s requires %s", step, field)
	}
	return nil
}

var stepDecoders map[StepType]stepDecoder

func init() {
	stepDecoders = map[StepType]stepDecoder{
		StepLaunchApp: shorthand(StepLaunchApp,
			func(s *LaunchAppStep, v string) error { s.AppID = v; return nil }, nil),
		StepClearState: shorthand(StepClearState,
			func(s *ClearStateStep, v string) error { s.AppID = v; return nil }, nil),
		StepGrantPermissions: shorthand(StepGrantPermissions,
			func(s *GrantPermissionsStep, v string) error { s.AppID = v; return nil }, nil),
		StepOpenLink: shorthand(StepOpenLink,
			func(s *OpenLinkStep, v string) error { s.Link = v; return nil },
			func(s *OpenLinkStep) error { return required(StepOpenLink, "link", s.Link) }),

		StepTapOn: shorthand(StepTapOn,
			func(s *TapOnStep, v string) error { s.Selector = Text(v); return nil },
			func(s *TapOnStep) error { return s.Selector.Resolve() }),
		StepTapOnImage: shorthand(StepTapOnImage,
			func(s *TapOnImageStep, v string) error { s.Image = v; return nil },
			func(s *TapOnImageStep) error { return required(StepTapOnImage, "image", s.Image) }),
		StepTapOnPoint: shorthand(StepTapOnPoint, func(s *TapOnPointStep, v string) error {
			if _, err := fmt.Sscanf(v, "%d,%d", &s.X, &s.Y); err != nil {
				return fmt.Errorf("invalid point %q", v)
			}
			return nil
		}, nil),
		StepInputText: shorthand(StepInputText,
			func(s *InputTextStep, v string) error { s.Text = v; return nil },
			func(s *InputTextStep) error {
				switch s.Keyboard {
				case "", "adb", "system":
					return nil
				}
				return fmt.Errorf("unknown keyboard %q (want adb or system)", s.Keyboard)
			}),
		StepBack: shorthand[BackStep](StepBack, nil, nil),

		StepAssertVisible: shorthand(StepAssertVisible,
			func(s *AssertVisibleStep, v string) error { s.Selector = Text(v); return nil },
			func(s *AssertVisibleStep) error { return s.Selector.Resolve() }),
		StepWaitFor: decodeWaitFor,

		StepShell: shorthand(StepShell,
			func(s *ShellStep, v string) error { s.Command = v; return nil }, nil),
		StepTakeScreenshot: shorthand(StepTakeScreenshot,
			func(s *TakeScreenshotStep, v string) error { s.Path = v; return nil }, nil),
		StepDumpHierarchy: shorthand(StepDumpHierarchy,
			func(s *DumpHierarchyStep, v string) error { s.Path = v; return nil }, nil),

		StepRunScript: shorthand(StepRunScript,
			func(s *RunScriptStep, v string) error { s.Script = v; return nil }, nil),
		StepEvalScript: shorthand(StepEvalScript,
			func(s *EvalScriptStep, v string) error { s.Script = v; return nil }, nil),
	}
}

func decodeStep(stepType StepType, valueNode *yaml.Node, sourcePath string) (Step, error) {
	decode, ok := stepDecoders[stepType]
	if !ok {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    valueNode.Line,
			Message: fmt.Sprintf("unknown step type: %s", stepType),
		}
	}
	step, err := decode(valueNode)
	if err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}
	return step, nil
}

// decodeWaitFor keeps the conditions in file order, since the first
// matching condition wins.
func decodeWaitFor(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("waitFor must be a mapping")
	}

	s := &WaitForStep{BaseStep: BaseStep{StepType: StepWaitFor}}
	if err := node.Decode(s); err != nil {
		return nil, err
	}

	var conds *yaml.Node
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == "conditions" {
			conds = node.Content[i+1]
		}
	}
	if conds == nil || conds.Kind != yaml.MappingNode || len(conds.Content) == 0 {
		return nil, fmt.Errorf("waitFor requires a conditions mapping")
	}
	for i := 0; i < len(conds.Content)-1; i += 2 {
		s.Conditions = append(s.Conditions, Condition{
			Name:  conds.Content[i].Value,
			XPath: conds.Content[i+1].Value,
		})
	}

	return s, nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}
