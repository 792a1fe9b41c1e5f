package models

// IngestRecord is one imported team reference from a data provider. The
// external id is deliberately unvalidated here; malformed ids resolve to an
// unparseable outcome instead of failing the batch.
type IngestRecord struct {
	Provider   string `json:"provider" validate:"required,max=64"`
	ExternalID string `json:"external_id"`
	RawName    string `json:"raw_name" validate:"required"`
	ClubHint   string `json:"club_hint,omitempty"`
	AgeHint    string `json:"age_hint,omitempty"`
	GenderHint string `json:"gender_hint,omitempty" validate:"omitempty,max=32"`
	RegionHint string `json:"region_hint,omitempty"`
	League     string `json:"league,omitempty"`
}
