package models

import "time"

// Severity ranks the impact of a threat.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ThreatCategory is a STRIDE category key.
type ThreatCategory string

const (
	CategorySpoofing              ThreatCategory = "SPOOFING"
	CategoryTampering             ThreatCategory = "TAMPERING"
	CategoryRepudiation           ThreatCategory = "REPUDIATION"
	CategoryInformationDisclosure ThreatCategory = "INFORMATION_DISCLOSURE"
	CategoryDenialOfService       ThreatCategory = "DENIAL_OF_SERVICE"
	CategoryElevationOfPrivilege  ThreatCategory = "ELEVATION_OF_PRIVILEGE"
)

// Threat is one identified threat, tagged with the STRIDE category that produced it.
type Threat struct {
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Severity           Severity       `json:"severity"`
	AffectedComponents []string       `json:"affected_components"`
	AttackScenario     string         `json:"attack_scenario"`
	Mitigation         string         `json:"mitigation"`
	References         []string       `json:"references"`
	Category           ThreatCategory `json:"category"`
	CategoryName       string         `json:"category_name"`
}

// SeverityCounts tallies threats per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total returns the sum of all severity buckets.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Report is the final result of a completed job.
type Report struct {
	SystemName     string            `json:"system_name"`
	Architecture   ArchitectureModel `json:"architecture"`
	Threats        []Threat          `json:"threats"`
	Summary        string            `json:"summary"`
	SeverityCounts SeverityCounts    `json:"severity_counts"`
	Timestamp      time.Time         `json:"timestamp"`
	DiagramImage   string            `json:"diagram_image,omitempty"`
}
