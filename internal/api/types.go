package api

// InfoRequest is the body of a POST /info query.
type InfoRequest struct {
	Type         string `json:"type"`
	VaultAddress string `json:"vaultAddress,omitempty"`
}

// VaultDetailsResponse from {"type":"vaultDetails"}. Only the fields the relay uses are decoded.
type VaultDetailsResponse struct {
	Name         string             `json:"name"`
	VaultAddress string             `json:"vaultAddress"`
	Leader       string             `json:"leader"`
	Relationship *VaultRelationship `json:"relationship"`
}

// VaultRelationship describes a parent/child vault relationship.
type VaultRelationship struct {
	Type string                `json:"type"` // "parent", "child" or "normal"
	Data VaultRelationshipData `json:"data"`
}

// VaultRelationshipData holds the child addresses of a parent vault.
type VaultRelationshipData struct {
	ChildAddresses []string `json:"childAddresses"`
}
