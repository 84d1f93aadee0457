package config

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestNewPasswordConfig(t *testing.T) {
	tests := []struct {
		name       string
		bcryptCost string
		pepper     string
		wantCost   int
		wantErr    bool
	}{
		{name: "default cost", wantCost: 12},
		{name: "valid cost", bcryptCost: "10", wantCost: 10},
		{name: "cost too low", bcryptCost: "9", wantErr: true},
		{name: "cost too high", bcryptCost: "15", wantErr: true},
		{name: "invalid cost", bcryptCost: "invalid", wantErr: true},
		{name: "with pepper", bcryptCost: "10", pepper: "test-pepper", wantCost: 10},
		{name: "pepper too long", bcryptCost: "10", pepper: strings.Repeat("p", 72), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BCRYPT_COST", tt.bcryptCost)
			t.Setenv("PASSWORD_PEPPER", tt.pepper)

			config, err := NewPasswordConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPasswordConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if config.BcryptCost != tt.wantCost {
				t.Errorf("BcryptCost = %d, want %d", config.BcryptCost, tt.wantCost)
			}
			if config.Pepper != tt.pepper {
				t.Errorf("Pepper = %q, want %q", config.Pepper, tt.pepper)
			}
		})
	}
}

func TestPasswordConfig_HashAndVerify(t *testing.T) {
	config := &PasswordConfig{BcryptCost: 10}

	hash, err := config.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "password123" {
		t.Fatal("HashPassword() returned the plaintext")
	}
	if !config.VerifyPassword("password123", hash) {
		t.Error("VerifyPassword() should accept the correct password")
	}
	if config.VerifyPassword("wrong", hash) {
		t.Error("VerifyPassword() should reject a wrong password")
	}
}

func TestPasswordConfig_PepperIsRequiredToVerify(t *testing.T) {
	withPepper := &PasswordConfig{BcryptCost: 10, Pepper: "pepper-a"}
	hash, err := withPepper.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !withPepper.VerifyPassword("password123", hash) {
		t.Error("VerifyPassword() should accept with the same pepper")
	}
	if (&PasswordConfig{BcryptCost: 10}).VerifyPassword("password123", hash) {
		t.Error("VerifyPassword() should reject without the pepper")
	}
	if (&PasswordConfig{BcryptCost: 10, Pepper: "pepper-b"}).VerifyPassword("password123", hash) {
		t.Error("VerifyPassword() should reject with a rotated pepper")
	}
}

func TestPasswordConfig_TooLong(t *testing.T) {
	config := &PasswordConfig{BcryptCost: 10, Pepper: strings.Repeat("p", 64)}

	if _, err := config.HashPassword("12345678"); err != nil {
		t.Fatalf("72 bytes should hash, got %v", err)
	}
	_, err := config.HashPassword("123456789")
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("HashPassword() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestPasswordConfig_SaltUniqueness(t *testing.T) {
	config := &PasswordConfig{BcryptCost: 10}
	a, _ := config.HashPassword("same")
	b, _ := config.HashPassword("same")
	if a == b {
		t.Error("hashes of the same password should differ")
	}
}

func TestPasswordConfig_NeedsRehash(t *testing.T) {
	old := &PasswordConfig{BcryptCost: 10}
	hash, err := old.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if old.NeedsRehash(hash) {
		t.Error("same cost should not need rehash")
	}
	if !(&PasswordConfig{BcryptCost: 11}).NeedsRehash(hash) {
		t.Error("different cost should need rehash")
	}
	if !old.NeedsRehash("garbage") {
		t.Error("unparseable hash should need rehash")
	}
}

func TestPasswordConfig_ConcurrentAccess(t *testing.T) {
	config := &PasswordConfig{BcryptCost: 10}
	hash, err := config.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !config.VerifyPassword("password123", hash) {
				t.Error("concurrent VerifyPassword() failed")
			}
		}()
	}
	wg.Wait()
}

func BenchmarkHashPassword_Cost10(b *testing.B) {
	config := &PasswordConfig{BcryptCost: 10}
	for i := 0; i < b.N; i++ {
		_, _ = config.HashPassword("benchmark-password")
	}
}
