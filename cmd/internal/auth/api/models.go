package api

import "time"

type loginRequest struct {
	UID        string `json:"uid"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type tokenCreateRequest struct {
	Name      string `json:"name"`
	ExpiresIn string `json:"expires_in"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Username    *string    `json:"username,omitempty"`
	Email       *string    `json:"email,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type loginResponse struct {
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

type meResponse struct {
	User        userResponse `json:"user"`
	Guard       string       `json:"guard"`
	ViaRemember bool         `json:"via_remember,omitempty"`
	CSRFToken   string       `json:"csrf_token,omitempty"`
}

type tokenCreateResponse struct {
	Type      string     `json:"type"`
	Token     string     `json:"token"`
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}
