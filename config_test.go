package authcore

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("config-test-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("config-test-refresh-secret-012345678")
	cfg.Vault.MasterKey = "config-test-master-key-0123456789abc"
	return cfg
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	if err := validTestConfig().validate(); err != nil {
		t.Fatalf("defaults with secrets should validate: %v", err)
	}
}

func TestConfigValidateFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "short master key",
			mutate:  func(c *Config) { c.Vault.MasterKey = "too-short" },
			wantMsg: "master key",
		},
		{
			name:    "missing jwt secrets",
			mutate:  func(c *Config) { c.JWT.AccessSecret = nil },
			wantMsg: "secrets are required",
		},
		{
			name:    "shared jwt secret",
			mutate:  func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret },
			wantMsg: "must differ",
		},
		{
			name:    "access TTL above refresh TTL",
			mutate:  func(c *Config) { c.JWT.AccessTTL = c.JWT.RefreshTTL + time.Hour },
			wantMsg: "shorter than refresh",
		},
		{
			name:    "totp digits out of range",
			mutate:  func(c *Config) { c.TOTP.Digits = 4 },
			wantMsg: "digits",
		},
		{
			name:    "negative totp skew",
			mutate:  func(c *Config) { c.TOTP.Skew = -1 },
			wantMsg: "period or skew",
		},
		{
			name:    "backup codes too short",
			mutate:  func(c *Config) { c.BackupCodes.Length = 4 },
			wantMsg: "backup code",
		},
		{
			name:    "bcrypt cost out of range",
			mutate:  func(c *Config) { c.BackupCodes.BcryptCost = 4 },
			wantMsg: "bcrypt cost",
		},
		{
			name:    "no mfa-required roles",
			mutate:  func(c *Config) { c.MFA.RequiredRoles = nil },
			wantMsg: "MFA-required role",
		},
		{
			name:    "zero guard attempts",
			mutate:  func(c *Config) { c.Telemetry.MaxAttempts = 0 },
			wantMsg: "brute-force guard",
		},
		{
			name:    "zero store timeout",
			mutate:  func(c *Config) { c.Store.Timeout = 0 },
			wantMsg: "store timeout",
		},
		{
			name: "test hooks in production",
			mutate: func(c *Config) {
				c.ProductionMode = true
				c.Insecure.AllowTestHooks = true
			},
			wantMsg: "production",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestFillDefaultsBackfillsTunables(t *testing.T) {
	sparse := Config{
		JWT: JWTConfig{
			AccessSecret:  []byte("config-test-access-secret-0123456789"),
			RefreshSecret: []byte("config-test-refresh-secret-012345678"),
		},
		Vault: VaultConfig{MasterKey: "config-test-master-key-0123456789abc"},
	}
	filled := fillDefaults(sparse)

	if err := filled.validate(); err != nil {
		t.Fatalf("filled config should validate: %v", err)
	}
	def := defaultConfig()
	if filled.JWT.AccessTTL != def.JWT.AccessTTL || filled.JWT.Issuer != def.JWT.Issuer {
		t.Fatalf("jwt tunables not backfilled: %+v", filled.JWT)
	}
	if filled.TOTP.Digits != def.TOTP.Digits || filled.TOTP.Period != def.TOTP.Period {
		t.Fatalf("totp tunables not backfilled: %+v", filled.TOTP)
	}
	if filled.BackupCodes.Count != def.BackupCodes.Count {
		t.Fatalf("backup code tunables not backfilled: %+v", filled.BackupCodes)
	}
	if len(filled.MFA.RequiredRoles) == 0 || filled.MFA.MarkerTTL != def.MFA.MarkerTTL {
		t.Fatalf("mfa tunables not backfilled: %+v", filled.MFA)
	}
	if filled.Store.Timeout != def.Store.Timeout || filled.Store.RedisPrefix != def.Store.RedisPrefix {
		t.Fatalf("store tunables not backfilled: %+v", filled.Store)
	}
}

func TestFillDefaultsNeverInventsSecrets(t *testing.T) {
	filled := fillDefaults(Config{})
	if len(filled.JWT.AccessSecret) != 0 || len(filled.JWT.RefreshSecret) != 0 {
		t.Fatal("jwt secrets must not be defaulted")
	}
	if filled.Vault.MasterKey != "" {
		t.Fatal("master key must not be defaulted")
	}
	if err := filled.validate(); err == nil {
		t.Fatal("secretless config must not validate")
	}
}

func TestFillDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := validTestConfig()
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.BackupCodes.Count = 6
	cfg.MFA.RequiredRoles = []Role{RoleSuperAdmin, RoleSalonOwner}

	filled := fillDefaults(cfg)
	if filled.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("explicit access TTL overwritten: %v", filled.JWT.AccessTTL)
	}
	if filled.BackupCodes.Count != 6 {
		t.Fatalf("explicit backup code count overwritten: %d", filled.BackupCodes.Count)
	}
	if len(filled.MFA.RequiredRoles) != 2 {
		t.Fatalf("explicit role list overwritten: %v", filled.MFA.RequiredRoles)
	}
}

func TestRoleRequiresMFA(t *testing.T) {
	cfg := validTestConfig()
	if !cfg.roleRequiresMFA(RoleSuperAdmin) {
		t.Fatal("super admin must require MFA by default")
	}
	if cfg.roleRequiresMFA(RoleStaffMember) {
		t.Fatal("staff must not require MFA by default")
	}
}
