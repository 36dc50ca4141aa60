package service

import (
	"context"

	"directory_go/internal/domain"
)

// UserService exposes the user directory backing the chat picker.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

// ListContacts returns every active user except the viewer, the set a client
// may start a direct room with.
func (s *UserService) ListContacts(ctx context.Context, viewer *domain.User) ([]*domain.User, error) {
	all, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return all, nil
	}
	contacts := all[:0]
	for _, u := range all {
		if u.Username != viewer.Username {
			contacts = append(contacts, u)
		}
	}
	return contacts, nil
}
