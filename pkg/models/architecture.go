package models

// ComponentType classifies a component found on an architecture diagram.
type ComponentType string

const (
	ComponentApplication ComponentType = "APPLICATION"
	ComponentDatabase    ComponentType = "DATABASE"
	ComponentAPI         ComponentType = "API"
	ComponentService     ComponentType = "SERVICE"
	ComponentExternal    ComponentType = "EXTERNAL"
	ComponentNetwork     ComponentType = "NETWORK"
	ComponentUser        ComponentType = "USER"
	ComponentStorage     ComponentType = "STORAGE"
)

// Valid reports whether t is one of the known component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentApplication, ComponentDatabase, ComponentAPI, ComponentService,
		ComponentExternal, ComponentNetwork, ComponentUser, ComponentStorage:
		return true
	}
	return false
}

// Component is a single building block identified on the diagram.
type Component struct {
	Name         string        `json:"name"`
	Type         ComponentType `json:"type"`
	Description  string        `json:"description"`
	Technologies []string      `json:"technologies"`
}

// ArchitectureModel is the structured decomposition of an architecture diagram.
type ArchitectureModel struct {
	Description     string      `json:"description"`
	Components      []Component `json:"components"`
	DataFlows       []string    `json:"data_flows"`
	TrustBoundaries []string    `json:"trust_boundaries"`
}
