// Package models defines data structures for cvfolio-portal.
package models

// Identity is the authenticated user record issued by the remote auth
// provider. The portal treats it as read-only input.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}
