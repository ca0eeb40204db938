package users

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// CanEdit reports whether the role may upload, edit, and delete videos.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleAdmin
}

const AdminUsername = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("user not found")
)

type User struct {
	gorm.Model
	Username     string `gorm:"unique" json:"username"`
	Password     string `json:"-"`
	Role         Role   `gorm:"default:viewer" json:"role"`
	Organization string `gorm:"index" json:"organization"`
}

func Create(db *gorm.DB, username, password string, role Role, organization string) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := User{Username: username, Password: string(hashedPassword), Role: role, Organization: organization}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate returns the user whose credentials match, or
// ErrInvalidCredentials. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func Authenticate(db *gorm.DB, username, password string) (*User, error) {
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	return &user, nil
}

// EnsureAdmin creates the admin account if it does not exist yet.
func EnsureAdmin(db *gorm.DB, password string) (created bool, err error) {
	var user User
	err = db.Where("username = ?", AdminUsername).First(&user).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if password == "" {
		return false, fmt.Errorf("no admin account and VIDSAFE_ADMIN_INITIAL_PASSWORD is not set")
	}
	if _, err := Create(db, AdminUsername, password, RoleAdmin, ""); err != nil {
		return false, fmt.Errorf("create admin account: %w", err)
	}
	return true, nil
}
