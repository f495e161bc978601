package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/auth/password"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const defaultDemoPassword = "demo123"

// UserSeed is one entry of a users.yml seed file.
type UserSeed struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type userFile struct {
	Users []UserSeed `yaml:"users"`
}

// DefaultUsers is the demo roster used when no seed file is given.
func DefaultUsers() []UserSeed {
	return []UserSeed{
		{Username: "admin", Email: "admin@cabletrack.local", Phone: "+15550000001", Password: defaultDemoPassword, Role: string(authdomain.RoleAdmin)},
		{Username: "jmartinez", Email: "jmartinez@cabletrack.local", Phone: "+15550000002", Password: defaultDemoPassword, Role: string(authdomain.RoleUser)},
		{Username: "bob_inventory", Email: "bob@cabletrack.local", Phone: "+15550000003", Password: defaultDemoPassword, Role: string(authdomain.RoleUser)},
	}
}

// LoadUsers reads a YAML seed file with a top-level "users" list.
func LoadUsers(path string) ([]UserSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file userFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("seed file %s has no users", path)
	}
	return file.Users, nil
}

// EnsureUsers creates every seed user that does not already exist by
// username or email. It returns the usernames it created.
func EnsureUsers(ctx context.Context, db *gorm.DB, node *snowflake.Node, users []UserSeed) ([]string, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if node == nil {
		return nil, errors.New("seed id generator is required")
	}

	var created []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range users {
			username := strings.TrimSpace(seed.Username)
			email := strings.ToLower(strings.TrimSpace(seed.Email))
			if username == "" || email == "" {
				return fmt.Errorf("seed user requires username and email")
			}

			var count int64
			if err := tx.Model(&authdomain.User{}).
				Where("username = ? OR LOWER(email) = ?", username, email).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			secret := seed.Password
			if secret == "" {
				secret = defaultDemoPassword
			}
			hashed, err := password.Hash(secret)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			user := authdomain.User{
				ID:           node.Generate().Int64(),
				Username:     username,
				Email:        email,
				PasswordHash: hashed,
				Role:         authdomain.ParseRole(seed.Role),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if phone := strings.TrimSpace(seed.Phone); phone != "" {
				user.Phone = &phone
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			created = append(created, username)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
