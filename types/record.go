package types

// Kind is the block-storage resource kind
type Kind string

const (
	KindVolume   Kind = "volume"
	KindSnapshot Kind = "snapshot"
)

// StatusAvailable marks a volume that is not attached to anything
const StatusAvailable = "available"

// Record is the canonical shape of a block-storage resource after
// provider normalization. Providers map their own field names into
// this once per record; nothing downstream sees provider shapes.
type Record struct {
	ID          string            `json:"id"`
	ManagedID   string            `json:"managed_id"`
	Kind        Kind              `json:"kind"`
	Cloud       string            `json:"cloud"`
	Region      string            `json:"region"`
	Status      string            `json:"status,omitempty"`
	Nickname    string            `json:"nickname,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`

	// Textual RFC 3339 timestamps as reported by the provider.
	// CreatedAt may be absent depending on provider/API version;
	// UpdatedAt is the fallback for age evaluation.
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
