package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/pkg/db/option"
	"github.com/smallbiznis/cabletrack/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.User] {
	return repository.ProvideStore[domain.User](db)
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return r.store(db).Create(ctx, user)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, domain.ErrUserNotFound
	}
	user, err := r.store(db).FindOne(ctx, &domain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// FindByUsernameOrEmail matches either field; blank arguments are ignored.
func (r *repo) FindByUsernameOrEmail(ctx context.Context, db *gorm.DB, username, email string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" && email == "" {
		return nil, domain.ErrUserNotFound
	}

	var opts []option.QueryOption
	switch {
	case username != "" && email != "":
		opts = append(opts, option.WithWhere("username = ? OR LOWER(email) = ?", username, email))
	case username != "":
		opts = append(opts, option.WithWhere("username = ?", username))
	default:
		opts = append(opts, option.WithWhere("LOWER(email) = ?", email))
	}
	opts = append(opts, option.WithSortBy("id", "asc"))

	user, err := r.store(db).FindOne(ctx, &domain.User{}, opts...)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.User, error) {
	return r.store(db).Find(ctx, &domain.User{}, option.WithSortBy("username", "asc"))
}
