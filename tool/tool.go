package tool

type Choice string

const (
	ChoiceAuto Choice = "auto"
	ChoiceNone Choice = "none"
)

type Tool struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *Parameters `json:"parameters,omitempty"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Function declares a function tool. A nil props declares a tool without
// parameters.
func Function(name, description string, props Properties, required ...string) Tool {
	t := Tool{
		Type:        "function",
		Name:        name,
		Description: description,
	}
	if props != nil {
		if required == nil {
			required = []string{}
		}
		t.Parameters = &Parameters{
			Type:       "object",
			Properties: props,
			Required:   required,
		}
	}
	return t
}

// ChoiceFor returns auto when tools are present.
func ChoiceFor(tools []Tool) Choice {
	if len(tools) > 0 {
		return ChoiceAuto
	}
	return ChoiceNone
}
