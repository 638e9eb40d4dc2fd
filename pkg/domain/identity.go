package domain

// Identity is the pre-resolved caller identity attached to a request.
// A nil *Identity means the caller is anonymous. The core never parses or
// signs tokens; it only consumes this already-verified tuple.
type Identity struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// IsOwner reports whether the caller owns the entity referenced by ownerID.
// Unauthenticated callers are never owners, nor is anyone for an
// anonymous entity.
func IsOwner(ownerID *int64, ident *Identity) bool {
	if ident == nil || ownerID == nil {
		return false
	}
	return ident.UserID == *ownerID
}
