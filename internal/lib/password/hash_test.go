package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewHasher_CostRange(t *testing.T) {
	tests := []struct {
		name     string
		cost     int
		wantCost int
	}{
		{"configured cost kept", 12, 12},
		{"minimum cost kept", bcrypt.MinCost, bcrypt.MinCost},
		{"zero falls back to default", 0, bcrypt.DefaultCost},
		{"negative falls back to default", -1, bcrypt.DefaultCost},
		{"too high falls back to default", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHasher(tt.cost)
			if h.cost != tt.wantCost {
				t.Errorf("NewHasher(%d).cost = %d, want %d", tt.cost, h.cost, tt.wantCost)
			}
		})
	}
}

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{"regular password", "password123"},
		{"password with special chars", "p@ssw0rd!@#$%^&*()"},
		{"long password", "verylongpasswordwithmorethanfiftycharacters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if hash == "" {
				t.Fatal("Hash() returned empty hash")
			}
			if err := h.Compare(hash, tt.password); err != nil {
				t.Errorf("Compare() rejected the original password: %v", err)
			}
		})
	}
}

func TestHasher_CompareRejectsWrongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("correct_password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name        string
		password    string
		shouldMatch bool
	}{
		{"matching password", "correct_password", true},
		{"wrong password", "wrong_password", false},
		{"empty password", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Compare(hash, tt.password)
			if tt.shouldMatch && err != nil {
				t.Errorf("Compare() should succeed, got error: %v", err)
			}
			if !tt.shouldMatch && err == nil {
				t.Error("Compare() should fail, but got no error")
			}
		})
	}
}

// Хеши, выданные со старой стоимостью, проверяются после её смены.
func TestHasher_CompareAcrossCosts(t *testing.T) {
	old := NewHasher(bcrypt.MinCost)
	hash, err := old.Hash("str0ng-pass")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	current := NewHasher(bcrypt.MinCost + 1)
	if err := current.Compare(hash, "str0ng-pass"); err != nil {
		t.Errorf("Compare() rejected a hash issued with a different cost: %v", err)
	}
}
