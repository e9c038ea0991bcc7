package service

import (
	"errors"
	"testing"

	"github.com/xiushen/internal/db"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewUserService(db.DB)

	user, err := svc.Register("baoyu", "hongloumeng")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Level != 1 || user.TotalXP != 0 {
		t.Fatalf("new user should start at level 1 with 0 xp: %+v", user)
	}
	if user.PasswordHash == "hongloumeng" {
		t.Fatal("password must not be stored in plain text")
	}

	// 重名注册被拒绝
	if _, err := svc.Register("baoyu", "another66"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	// 密码过短被拒绝
	if _, err := svc.Register("xiren", "123"); err == nil {
		t.Fatal("expected error for short password")
	}

	authed, err := svc.Authenticate("baoyu", "hongloumeng")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, authed.ID)
	}

	if _, err := svc.Authenticate("baoyu", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewUserService(db.DB)
	user, err := svc.Register("daiyu", "putaojia")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	got, err := svc.Get(user.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Username != "daiyu" {
		t.Fatalf("unexpected username %q", got.Username)
	}

	if _, err := svc.Get(9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
