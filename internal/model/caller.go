package model

// Role is the caller's authorization role as asserted by the authentication layer.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Caller is the already-verified identity of the party making a request.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the caller carries the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Owns reports whether the caller uploaded the document.
func (c Caller) Owns(doc *Document) bool {
	return doc != nil && c.ID != "" && c.ID == doc.UploadedBy
}
