package alert

// Config defines a webhook destination for oversight notifications.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["breach", "denied"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints. A "breach" event is a
// strict-window violation; "denied" covers ordinary policy denials for
// destinations that subscribe to them.
type Event struct {
	Timestamp      string `json:"timestamp"`
	Type           string `json:"type"` // "breach" or "denied"
	RelationshipID string `json:"relationship_id"`
	Intent         string `json:"intent"`
	Protocol       string `json:"protocol"`
	Reason         string `json:"reason"`
	TrustLevel     int    `json:"trust_level"`
	PolicyHash     string `json:"policy_hash"`
	EntryHash      string `json:"entry_hash"`
}
