package handler

import "github.com/marketplace/storefront/internal/core/domain"

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Redirect string `json:"redirect,omitempty"`
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Name     string `json:"name"     validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"     validate:"required,signup_role"`
}

type loginResponse struct {
	User     *domain.User `json:"user"`
	Redirect string       `json:"redirect"`
}

type registerResponse struct {
	User *domain.User `json:"user"`
}

type sessionResponse struct {
	State string       `json:"state"`
	User  *domain.User `json:"user,omitempty"`
}

type signInResponse struct {
	Entry    string `json:"entry"`
	Redirect string `json:"redirect,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

type dashboardResponse struct {
	Area string       `json:"area"`
	User *domain.User `json:"user"`
}
