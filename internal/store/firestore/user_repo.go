package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"directory_go/internal/domain"
)

// UserRepo stores users in the directory app's users collection, keyed by
// username so uniqueness falls out of the document id.
type UserRepo struct {
	client *firestore.Client
}

func NewUserRepo(client *firestore.Client) *UserRepo {
	return &UserRepo{client: client}
}

var _ domain.UserRepository = (*UserRepo)(nil)

type userDoc struct {
	Username       string    `firestore:"username"`
	DisplayName    string    `firestore:"displayName"`
	ProfileImg     string    `firestore:"profileImg"`
	Email          string    `firestore:"email"`
	Role           string    `firestore:"role"`
	HashedPassword string    `firestore:"hashedPassword"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"created"`
}

func userFromDoc(id string, d userDoc) *domain.User {
	u := &domain.User{
		ID:             id,
		Username:       d.Username,
		DisplayName:    d.DisplayName,
		ProfileImg:     d.ProfileImg,
		Role:           d.Role,
		HashedPassword: d.HashedPassword,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
	}
	if d.Email != "" {
		email := d.Email
		u.Email = &email
	}
	return u
}

func (r *UserRepo) users() *firestore.CollectionRef {
	return r.client.Collection(usersCollection)
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	_, err := r.users().Doc(u.Username).Create(ctx, userDoc{
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		ProfileImg:     u.ProfileImg,
		Email:          email,
		Role:           u.Role,
		HashedPassword: u.HashedPassword,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
	})
	if status.Code(err) == codes.AlreadyExists {
		return domain.ErrConflict
	}
	if err != nil {
		return storeErr("create user", err)
	}
	u.ID = u.Username
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	snap, err := r.users().Doc(username).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}

	var d userDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return userFromDoc(snap.Ref.ID, d), nil
}

func (r *UserRepo) ListActive(ctx context.Context) ([]*domain.User, error) {
	iter := r.users().Where("isActive", "==", true).Documents(ctx)
	defer iter.Stop()

	var users []*domain.User
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storeErr("list users", err)
		}
		var d userDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, userFromDoc(snap.Ref.ID, d))
	}
	return users, nil
}
