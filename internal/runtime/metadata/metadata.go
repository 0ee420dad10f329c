package metadata

// Metadata represents the transport headers an update arrived with.
type Metadata map[string]string

// Reserved keys set by ingress adapters and the dispatcher.
const (
	// KeySource names the ingress that delivered the update.
	KeySource = "botflow_source"
	// KeyMessageUUID is the id of the transport message carrying the update.
	KeyMessageUUID = "botflow_message_uuid"
	// KeyUpdateKind records the classified update kind.
	KeyUpdateKind = "botflow_update_kind"
	// KeyCorrelationID tracks related messages across services.
	KeyCorrelationID = "correlation_id"
)

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Get returns the value for key, or "" when m is nil or the key is absent.
func (m Metadata) Get(key string) string {
	return m[key]
}

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
