package state

// History is the last recorded outcome of every domain, keyed by domain name.
type History struct {
	Domains map[string]DomainRecord
}

// DomainRecord is informational only; reconciliation never reads it back.
type DomainRecord struct {
	Domain    string `json:"domain"`
	Status    string `json:"status"`
	Address   string `json:"address"`
	Previous  string `json:"previous,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	DryRun    bool   `json:"dryRun,omitempty"`
	CheckedAt int64  `json:"checkedAt"`
}
