package tasks

import (
	"fmt"
	"os"
	"strings"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Plan is a batch of pivot operations against one relation of one owner.
type Plan struct {
	Owner    PlanOwner  `yaml:"owner"`
	Relation string     `yaml:"relation"`
	Steps    []PlanStep `yaml:"steps"`
}

// PlanOwner addresses the owner by morph type and id.
type PlanOwner struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// Ref returns the owner as an identifiable reference.
func (o PlanOwner) Ref() models.Ref {
	return models.Ref{Type: o.Type, ID: models.ParseID(o.ID)}
}

// PlanStep is one operation of a [Plan].
//
// Touch and Detaching default to true when omitted.
type PlanStep struct {
	Op         string            `yaml:"op"`
	IDs        yaml.Node         `yaml:"ids"`
	Attributes models.Attributes `yaml:"attributes"`
	Touch      *bool             `yaml:"touch"`
	Detaching  *bool             `yaml:"detaching"`

	kind  pivot.Kind
	input pivot.Input
}

// Kind returns the resolved operation; valid after [ParsePlan].
func (s PlanStep) Kind() pivot.Kind { return s.kind }

// Input returns the resolved identifiers; nil when the step lists none.
func (s PlanStep) Input() pivot.Input { return s.input }

func (s PlanStep) touch() bool     { return s.Touch == nil || *s.Touch }
func (s PlanStep) detaching() bool { return s.Detaching == nil || *s.Detaching }

// LoadPlan reads and parses the plan file at path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes a YAML plan and resolves every step's operation and identifiers.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: failed to parse plan: %v", shared.ErrInvalidInput, err)
	}

	if plan.Relation == "" {
		return nil, fmt.Errorf("%w: plan relation is required", shared.ErrInvalidInput)
	}
	if plan.Owner.Type == "" || strings.TrimSpace(plan.Owner.ID) == "" {
		return nil, fmt.Errorf("%w: plan owner type and id are required", shared.ErrInvalidInput)
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]

		kind, ok := pivot.ParseKind(step.Op)
		if !ok {
			return nil, fmt.Errorf("%w: step %d: unknown op %q", shared.ErrInvalidInput, i+1, step.Op)
		}
		step.kind = kind

		in, err := nodeInput(&step.IDs)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if in == nil && kind != pivot.KindDetach && kind != pivot.KindSync {
			return nil, fmt.Errorf("%w: step %d: %s requires ids", shared.ErrInvalidInput, i+1, step.Op)
		}
		step.input = in
	}

	return &plan, nil
}

// nodeInput converts the ids node of a step into a [pivot.Input].
func nodeInput(node *yaml.Node) (pivot.Input, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		id, err := scalarID(node)
		if err != nil {
			return nil, err
		}
		return pivot.ID(id), nil
	case yaml.SequenceNode:
		list := make(pivot.ScalarList, len(node.Content))
		for i, item := range node.Content {
			id, err := scalarID(item)
			if err != nil {
				return nil, err
			}
			list[i] = id
		}
		return list, nil
	case yaml.MappingNode:
		pairs := make(pivot.IdentifierMap, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			id, err := scalarID(node.Content[i])
			if err != nil {
				return nil, err
			}

			value := node.Content[i+1]
			if value.Tag == "!!null" {
				pairs = append(pairs, pivot.Bare(id))
				continue
			}

			var attrs models.Attributes
			if err := value.Decode(&attrs); err != nil {
				return nil, fmt.Errorf("%w: line %d: attributes must be a mapping", shared.ErrInvalidInput, value.Line)
			}
			pairs = append(pairs, pivot.With(id, attrs))
		}
		return pairs, nil
	default:
		return nil, fmt.Errorf("%w: line %d: unsupported ids value", shared.ErrInvalidInput, node.Line)
	}
}

// scalarID decodes an id scalar. Quoted strings that parse as UUIDs become UUIDs.
func scalarID(node *yaml.Node) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("%w: line %d: identifier must be a scalar", shared.ErrInvalidInput, node.Line)
	}

	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, node.Line, err)
	}

	if s, ok := v.(string); ok {
		if u, err := uuid.Parse(s); err == nil {
			return u, nil
		}
	}
	return v, nil
}
