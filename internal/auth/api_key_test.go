package auth

import "testing"

func TestAPIKeyVerifier_Verify(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		given    string
		wantErr  bool
	}{
		{"match", "secret", "secret", false},
		{"mismatch", "secret", "wrong", true},
		{"empty given", "secret", "", true},
		{"empty expected", "", "secret", true},
		{"both empty", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := APIKeyVerifier{Expected: tc.expected}
			err := v.Verify(tc.given)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.wantErr && err != ErrInvalidCredentials {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}
