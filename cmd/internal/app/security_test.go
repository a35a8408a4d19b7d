package app

import (
	"errors"
	"testing"

	"github.com/volskaya/norman/cmd/security/secret"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	sc := secret.DefaultConfig()
	sc.Params.MemoryKiB = 8 * 1024
	sc.Params.Iterations = 1
	hash, err := sc.Hash("0123456789abcdef-long-enough")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cases := []struct {
		name    string
		ip      string
		token   string
		wantErr bool
		is      error
	}{
		{name: "loopback without token", ip: "127.0.0.1"},
		{name: "localhost without token", ip: "localhost"},
		{name: "ipv6 loopback without token", ip: "::1"},
		{name: "public without token", ip: "0.0.0.0", wantErr: true, is: ErrInsecureHTTP},
		{name: "public with token", ip: "0.0.0.0", token: "0123456789abcdef"},
		{name: "short token", ip: "127.0.0.1", token: "short", wantErr: true},
		{name: "hashed token", ip: "0.0.0.0", token: hash},
		{name: "malformed hash", ip: "0.0.0.0", token: "$argon2id$garbage", wantErr: true, is: secret.ErrInvalidHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSecurityConfig(Config{ServerIP: tc.ip, APIToken: tc.token})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err=%v want %v", err, tc.is)
			}
		})
	}
}
