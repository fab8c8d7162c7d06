package authsdk

import (
	"context"
	"net/http"
)

// GetUserInfo returns the profile and permissions of the session's user.
func (s *Session) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/userinfo", nil)
	if err != nil {
		return nil, err
	}
	var info UserInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// ChangePassword signs out every other session of the user, this one
// included: its refresh token is revoked.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/password", ChangePasswordRequest{
		CurrentPassword:    current,
		NewPassword:        next,
		NewPasswordConfirm: next,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ListUsers requires users:read.
func (s *Session) ListUsers(ctx context.Context) ([]User, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/users", nil)
	if err != nil {
		return nil, err
	}
	var out ListUsersResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetUser requires users:read.
func (s *Session) GetUser(ctx context.Context, userID string) (*User, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/users/"+userID, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := decodeJSON(resp, &u, http.StatusOK); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserRoles requires users:write.
func (s *Session) SetUserRoles(ctx context.Context, userID string, roles []string) error {
	resp, err := s.do(ctx, http.MethodPut, "/v1/admin/users/"+userID+"/roles", SetRolesRequest{Roles: roles})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DeactivateUser requires users:write.
func (s *Session) DeactivateUser(ctx context.Context, userID string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/users/"+userID+"/deactivate", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ActivateUser requires users:write.
func (s *Session) ActivateUser(ctx context.Context, userID string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/users/"+userID+"/activate", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
