package workflow

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"veriflow/internal/services"
)

// Kind classifies what a step does when executed.
type Kind string

const (
	// KindSubmitForm posts collected subject fields to the remote step.
	KindSubmitForm Kind = "submit_form"
	// KindUploadDocument generates a document and uploads it as the step body.
	KindUploadDocument Kind = "upload_document"
	// KindBranchOnStatus selects the next step from the remote's reported
	// status instead of sequence order.
	KindBranchOnStatus Kind = "branch_on_status"
)

// Outcome is the terminal status a finishing step assigns to the task.
type Outcome string

const (
	OutcomeApproved      Outcome = "approved"
	OutcomePendingReview Outcome = "pending_review"
)

// StepSpec describes one remote step of a verification profile.
type StepSpec struct {
	Name           string            `toml:"name"`
	Kind           Kind              `toml:"kind"`
	Action         string            `toml:"action"`
	RequiredFields []string          `toml:"required_fields"`
	Template       string            `toml:"template"`
	NextOnStatus   map[string]string `toml:"next_on_status"`
	Terminal       bool              `toml:"terminal"`
	Outcome        Outcome           `toml:"outcome"`
}

// Definition is the declarative step graph for one verification profile.
// Steps execute in list order unless a branch step redirects by status.
type Definition struct {
	Profile string     `toml:"profile"`
	Entry   string     `toml:"entry"`
	Steps   []StepSpec `toml:"step"`

	index map[string]int
}

// Parse decodes and validates a TOML profile definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := toml.Unmarshal(data, &def); err != nil {
		return nil, services.Wrap(services.ErrDefinition, "", "parse", "invalid profile TOML", err)
	}
	if err := def.compile(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads and validates a profile definition from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDefinition, "", "load", "read profile file", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Step returns the named step, or false when the definition has none.
func (d *Definition) Step(name string) (*StepSpec, bool) {
	idx, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.Steps[idx], true
}

// EntryStep returns the declared starting step.
func (d *Definition) EntryStep() *StepSpec {
	step, _ := d.Step(d.Entry)
	return step
}

// Sequential returns the step following the given one in list order, or nil
// when it is the last.
func (d *Definition) Sequential(name string) *StepSpec {
	idx, ok := d.index[name]
	if !ok || idx+1 >= len(d.Steps) {
		return nil
	}
	return &d.Steps[idx+1]
}

// PathLength counts the steps from the named step to a terminal step,
// inclusive. Branches count their longest arm so a task's totalSteps never
// shrinks below what the longest remaining path needs.
func (d *Definition) PathLength(name string) int {
	return d.pathLength(name, make(map[string]bool))
}

func (d *Definition) pathLength(name string, visiting map[string]bool) int {
	step, ok := d.Step(name)
	if !ok || visiting[name] {
		return 0
	}
	visiting[name] = true
	defer delete(visiting, name)

	if step.Terminal {
		return 1
	}
	if step.Kind == KindBranchOnStatus {
		longest := 0
		for _, target := range step.NextOnStatus {
			if n := d.pathLength(target, visiting); n > longest {
				longest = n
			}
		}
		return 1 + longest
	}
	next := d.Sequential(name)
	if next == nil {
		return 1
	}
	return 1 + d.pathLength(next.Name, visiting)
}

// compile indexes the steps and enforces structural rules. All problems are
// definition errors; a definition that compiles cannot fail step resolution
// at runtime except through the remote reporting an unmapped status.
func (d *Definition) compile() error {
	if strings.TrimSpace(d.Profile) == "" {
		return definitionErr(d.Profile, "profile name is required")
	}
	if len(d.Steps) == 0 {
		return definitionErr(d.Profile, "at least one step is required")
	}

	d.index = make(map[string]int, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if strings.TrimSpace(step.Name) == "" {
			return definitionErr(d.Profile, fmt.Sprintf("step %d has no name", i))
		}
		if _, dup := d.index[step.Name]; dup {
			return definitionErr(d.Profile, "duplicate step name "+step.Name)
		}
		d.index[step.Name] = i

		switch step.Kind {
		case KindSubmitForm, KindUploadDocument, KindBranchOnStatus:
		default:
			return definitionErr(d.Profile, fmt.Sprintf("step %s has unknown kind %q", step.Name, step.Kind))
		}
		if step.Kind == KindUploadDocument && strings.TrimSpace(step.Template) == "" {
			return definitionErr(d.Profile, "upload step "+step.Name+" declares no document template")
		}
		if step.Kind == KindBranchOnStatus && len(step.NextOnStatus) == 0 {
			return definitionErr(d.Profile, "branch step "+step.Name+" declares no status targets")
		}
		if step.Terminal {
			switch step.Outcome {
			case OutcomeApproved, OutcomePendingReview:
			default:
				return definitionErr(d.Profile, fmt.Sprintf("terminal step %s has unknown outcome %q", step.Name, step.Outcome))
			}
		}
	}

	if _, ok := d.index[d.Entry]; !ok {
		return definitionErr(d.Profile, fmt.Sprintf("entry step %q is not defined", d.Entry))
	}
	for i := range d.Steps {
		step := &d.Steps[i]
		for status, target := range step.NextOnStatus {
			if _, ok := d.index[target]; !ok {
				return definitionErr(d.Profile, fmt.Sprintf("step %s maps status %q to undefined step %q", step.Name, status, target))
			}
		}
		if !step.Terminal && step.Kind != KindBranchOnStatus && d.Sequential(step.Name) == nil {
			return definitionErr(d.Profile, "step "+step.Name+" is last in sequence but not terminal")
		}
	}
	return nil
}

func definitionErr(profile, message string) error {
	return services.Wrap(services.ErrDefinition, "", profile, message, nil)
}
