package auth

import "testing"

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret"})

	token, err := svc.GenerateToken(1, "alice", RoleOperator)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.OperatorID != 1 || claims.Username != "alice" || claims.Role != RoleOperator {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret"})
	other := NewService(Config{JWTSecret: "different-secret"})

	token, err := svc.GenerateToken(1, "alice", RoleViewer)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation against a different secret to fail")
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	svc := NewService(Config{JWTSecret: "s", BCryptCost: 4})
	hash, err := svc.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := svc.ComparePassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("expected matching password to compare clean: %v", err)
	}
	if err := svc.ComparePassword(hash, "wrong password"); err == nil {
		t.Error("expected mismatched password to fail comparison")
	}
}

func TestHasRoleHierarchy(t *testing.T) {
	cases := []struct {
		userRole, requiredRole string
		want                   bool
	}{
		{RoleAdmin, RoleViewer, true},
		{RoleOperator, RoleAdmin, false},
		{RoleViewer, RoleViewer, true},
		{"bogus", RoleViewer, false},
	}
	for _, tc := range cases {
		if got := HasRole(tc.userRole, tc.requiredRole); got != tc.want {
			t.Errorf("HasRole(%s, %s) = %v, want %v", tc.userRole, tc.requiredRole, got, tc.want)
		}
	}
}

func TestNewFeederTokenHashIsDeterministic(t *testing.T) {
	token, hash, err := NewFeederToken()
	if err != nil {
		t.Fatalf("new feeder token: %v", err)
	}
	if token == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if HashFeederToken(token) != hash {
		t.Error("expected HashFeederToken(token) to reproduce the minted hash")
	}

	token2, hash2, err := NewFeederToken()
	if err != nil {
		t.Fatalf("new feeder token: %v", err)
	}
	if token == token2 || hash == hash2 {
		t.Error("expected distinct tokens across calls")
	}
}
