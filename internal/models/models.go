package models

import (
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Permission bits combine into a role's permission mask.
type Permission int

const (
	PermFollow           Permission = 0x01
	PermComment          Permission = 0x02
	PermWriteArticles    Permission = 0x04
	PermModerateComments Permission = 0x08
	PermAdminister       Permission = 0x80
)

// ErrPasswordNotReadable is returned by User.Password: only the hash is stored.
var ErrPasswordNotReadable = errors.New("password is not readable")

type Role struct {
	ID          int64
	Name        string
	Permissions Permission
	Default     bool
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	AboutMe      string
	Description  string
	Location     string
	AvatarHash   string
	RoleID       int64
	Permissions  Permission
	CreatedAt    time.Time
}

// Can reports whether the user's role carries every bit in p.
func (u *User) Can(p Permission) bool {
	return u != nil && (u.Permissions&p) == p
}

func (u *User) IsAdminister() bool {
	return u.Can(PermAdminister)
}

// Password always fails: the raw password is write-only.
func (u *User) Password() (string, error) {
	return "", ErrPasswordNotReadable
}

// Gravatar builds the avatar URL from the stored email hash.
func (u *User) Gravatar(size int) string {
	hash := u.AvatarHash
	if hash == "" {
		hash = EmailHash(u.Email)
	}
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hash, size)
}

func EmailHash(email string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(strings.ToLower(email))))
}

type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Follow is a directed user-to-user edge, at most one per ordered pair.
type Follow struct {
	FollowerID int64
	FollowedID int64
	CreatedAt  time.Time
}

type Topic struct {
	ID          int64
	Name        string
	Description string
}

type Question struct {
	ID        int64
	Title     string
	Body      string
	UserID    int64
	Views     int64
	CreatedAt time.Time
	Author    string
	Topics    []Topic
}

type Answer struct {
	ID         int64
	QuestionID int64
	UserID     int64
	Body       string
	BodyHTML   string
	LikesCount int
	CreatedAt  time.Time

	// joined for display
	Author        string
	QuestionTitle string
}

type Comment struct {
	ID        int64
	AnswerID  int64
	UserID    int64
	Body      string
	CreatedAt time.Time
	Author    string
}

type Like struct {
	ID        int64
	AnswerID  int64
	UserID    int64
	Unread    bool
	CreatedAt time.Time

	// joined for display
	Author        string
	AnswerBody    string
	QuestionID    int64
	QuestionTitle string
}
