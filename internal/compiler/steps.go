package compiler

// Raw step DTOs, decoded from YAML via mapstructure. Each step in a
// flow document is a single-key map; the key selects the step kind and
// the value decodes into one of these structs.

type flowFile struct {
	Flows []rawFlow `yaml:"flows"`
}

type rawFlow struct {
	ID                  string         `yaml:"id"`
	Priority            float64        `yaml:"priority"`
	Loop                string         `yaml:"loop"`
	Activated           bool           `yaml:"activated"`
	ExcludeFromMatching bool           `yaml:"exclude_from_matching"`
	Parameters          []rawParameter `yaml:"parameters"`
	Steps               []rawStep      `yaml:"steps"`
}

type rawParameter struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Default any    `yaml:"default" mapstructure:"default"`
}

// rawStep is one undecoded step map.
type rawStep map[string]any

type matchStep struct {
	Type         string         `mapstructure:"type"`
	Arguments    map[string]any `mapstructure:"arguments"`
	SameLoopOnly bool           `mapstructure:"same_loop_only"`

	// SaveTo binds the matched event's arguments to a local variable.
	SaveTo string `mapstructure:"save_to"`
}

type sendStep struct {
	Action    string            `mapstructure:"action"`
	Channel   string            `mapstructure:"channel"`
	Arguments map[string]string `mapstructure:"arguments"`

	// SaveTo binds the action's return value to a local variable.
	SaveTo string `mapstructure:"save_to"`
}

// generateStep delegates value computation to the LLM-backed
// GenerateValue action; sugar for a send with save_to.
type generateStep struct {
	Var          string `mapstructure:"var"`
	Instructions string `mapstructure:"instructions"`
}

type assignStep struct {
	Var   string `mapstructure:"var"`
	Expr  string `mapstructure:"expr"`
	Scope string `mapstructure:"scope"` // "local" (default) or "context"
}

type ifStep struct {
	Cond string    `mapstructure:"cond"`
	Then []rawStep `mapstructure:"then"`
	Else []rawStep `mapstructure:"else"`
}

type whileStep struct {
	Cond string    `mapstructure:"cond"`
	Do   []rawStep `mapstructure:"do"`
}

type whenBranch struct {
	Steps []rawStep `mapstructure:"steps"`
}

type startStep struct {
	Flow      string            `mapstructure:"flow"`
	Wait      bool              `mapstructure:"wait"`
	Arguments map[string]string `mapstructure:"arguments"`
}

type activateStep struct {
	Flow      string            `mapstructure:"flow"`
	Arguments map[string]string `mapstructure:"arguments"`
}

type deactivateStep struct {
	Flow string `mapstructure:"flow"`
}

type logStep struct {
	Message string `mapstructure:"message"`
}
