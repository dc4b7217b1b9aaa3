package cloudflare

// listResponse is the envelope of GET zones/{zone}/dns_records.
// Result stays nil when the field is missing or null.
type listResponse struct {
	Result []record `json:"result"`
}

type record struct {
	ID      string  `json:"id"`
	Content *string `json:"content"`
}

type patchRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

type patchResponse struct {
	Success bool      `json:"success"`
	Errors  []message `json:"errors"`
}

type message struct {
	Message string `json:"message"`
}
