package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/beautystack/authcore/password"
)

const testPassword = "correct horse battery staple"

// memoryDirectory is an in-memory DirectoryProvider for engine tests.
type memoryDirectory struct {
	mu          sync.Mutex
	principals  map[string]PrincipalRecord
	enrollments map[string]EnrollmentRecord
	audit       []AuditEntry
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		principals:  make(map[string]PrincipalRecord),
		enrollments: make(map[string]EnrollmentRecord),
	}
}

func (d *memoryDirectory) add(p PrincipalRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.principals[p.ID] = p
}

func (d *memoryDirectory) update(id string, fn func(*PrincipalRecord)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.principals[id]
	fn(&p)
	d.principals[id] = p
}

func (d *memoryDirectory) GetPrincipalByEmail(_ context.Context, email string) (PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return PrincipalRecord{}, ErrPrincipalNotFound
}

func (d *memoryDirectory) GetPrincipalByID(_ context.Context, id string) (PrincipalRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.principals[id]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return p, nil
}

func (d *memoryDirectory) GetEnrollment(_ context.Context, principalID string) (*EnrollmentRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.enrollments[principalID]
	if !ok {
		return nil, nil
	}
	out := rec
	out.BackupCodeHashes = append([]string(nil), rec.BackupCodeHashes...)
	return &out, nil
}

func (d *memoryDirectory) PutEnrollment(_ context.Context, record EnrollmentRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrollments[record.PrincipalID] = record
	if p, ok := d.principals[record.PrincipalID]; ok {
		p.MFAEnabled = record.Enabled
		d.principals[record.PrincipalID] = p
	}
	return nil
}

func (d *memoryDirectory) DeleteEnrollment(_ context.Context, principalID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.enrollments, principalID)
	if p, ok := d.principals[principalID]; ok {
		p.MFAEnabled = false
		d.principals[principalID] = p
	}
	return nil
}

func (d *memoryDirectory) ReplaceBackupCodes(_ context.Context, principalID string, hashes []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.enrollments[principalID]
	rec.BackupCodeHashes = hashes
	d.enrollments[principalID] = rec
	return nil
}

func (d *memoryDirectory) ConsumeBackupCode(_ context.Context, principalID, hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.enrollments[principalID]
	for i, h := range rec.BackupCodeHashes {
		if h == hash {
			rec.BackupCodeHashes = append(rec.BackupCodeHashes[:i], rec.BackupCodeHashes[i+1:]...)
			d.enrollments[principalID] = rec
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryDirectory) TouchLastVerified(_ context.Context, principalID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.enrollments[principalID]
	if !ok {
		return nil
	}
	rec.LastVerifiedAt = at
	d.enrollments[principalID] = rec
	return nil
}

func (d *memoryDirectory) AppendAudit(_ context.Context, entry AuditEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audit = append(d.audit, entry)
	return nil
}

func (d *memoryDirectory) auditCount(action string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.audit {
		if e.Action == action {
			n++
		}
	}
	return n
}

type engineFixture struct {
	engine    *Engine
	directory *memoryDirectory
	redis     *miniredis.Miniredis
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("engine-test-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("engine-test-refresh-secret-012345678")
	cfg.Vault.MasterKey = "engine-test-master-key-0123456789abc"
	cfg.Password = PasswordConfig{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.BackupCodes.Count = 4
	cfg.BackupCodes.BcryptCost = 10
	return cfg
}

func newEngineFixture(t *testing.T, mutate func(*Config), hooks TestHooks) *engineFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	dir := newMemoryDirectory()
	builder := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(dir)
	if (hooks != TestHooks{}) {
		builder = builder.WithTestHooks(hooks)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})

	hash := hashTestPassword(t, cfg)
	dir.add(PrincipalRecord{
		ID: "owner-1", Email: "owner@glow.example", PasswordHash: hash,
		Role: RoleSalonOwner, TenantID: "tenant-1", TenantSlug: "glow",
		Active: true, TenantActive: true,
	})
	dir.add(PrincipalRecord{
		ID: "admin-1", Email: "admin@example.com", PasswordHash: hash,
		Role: RoleSuperAdmin, Active: true,
	})
	dir.add(PrincipalRecord{
		ID: "staff-1", Email: "staff@glow.example", PasswordHash: hash,
		Role: RoleStaffMember, TenantID: "tenant-1", TenantSlug: "glow",
		Active: true, TenantActive: true,
	})

	return &engineFixture{engine: engine, directory: dir, redis: mr}
}

func hashTestPassword(t *testing.T, cfg Config) string {
	t.Helper()
	hasher, err := password.New(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

// enroll walks a principal through the full setup flow and returns the
// decoded shared secret plus the plaintext backup codes.
func (f *engineFixture) enroll(t *testing.T, principalID string) ([]byte, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := f.engine.InitiateMFASetup(ctx, principalID)
	if err != nil {
		t.Fatalf("initiate setup: %v", err)
	}
	secret, err := base32NoPad.DecodeString(setup.SecretBase32)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	code := totpNow(t, secret)
	codes, err := f.engine.CompleteMFASetup(ctx, principalID, setup.SetupToken, code)
	if err != nil {
		t.Fatalf("complete setup: %v", err)
	}
	return secret, codes
}

func totpNow(t *testing.T, secret []byte) string {
	t.Helper()
	code, err := hotpCode(secret, time.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

func ipContext(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}
