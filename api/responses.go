package api

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}

// GrantResponse is one resolved grant of an effective-permissions listing.
type GrantResponse struct {
	RoleID     string            `json:"role_id" description:"Role contributing the permission"`
	Resource   string            `json:"resource" description:"Resource type"`
	Action     string            `json:"action" description:"Action name"`
	Conditions map[string]string `json:"conditions,omitempty" description:"Conditions attached to the grant"`
}

// CatalogEntryResponse is one recognized resource/action pair.
type CatalogEntryResponse struct {
	Resource string `json:"resource" description:"Resource type"`
	Action   string `json:"action" description:"Action name"`
}
