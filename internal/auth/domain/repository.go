package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*User, error)
	FindByUsernameOrEmail(ctx context.Context, db *gorm.DB, username, email string) (*User, error)
	List(ctx context.Context, db *gorm.DB) ([]*User, error)
}
