package registry

// PolicyRegistry is the knowledge-base manifest: which policy files answer
// which ticket category, in lookup order.
type PolicyRegistry struct {
	Version     string   `json:"version" yaml:"version"`
	LastUpdated string   `json:"lastUpdated" yaml:"last_updated"`
	Policies    []Policy `json:"policies" yaml:"policies"`
}

type Policy struct {
	ID          string   `json:"id" yaml:"id"`
	Category    string   `json:"category" yaml:"category"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	File        string   `json:"file" yaml:"file"`
	Priority    int      `json:"priority" yaml:"priority"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}
