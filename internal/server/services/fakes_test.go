package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// --- helpers ---

var errBoom = errors.New("boom")

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newAccessTokens(t *testing.T) *auth.AccessTokens {
	t.Helper()
	ring, err := auth.NewKeyRing("k1", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKeyRing error: %v", err)
	}
	return auth.NewAccessTokens(ring, "test")
}

func newTestAuthority(t *testing.T, db *sql.DB, rm *fakeRepoManager, rec metrics.Recorder) *TokenAuthority {
	t.Helper()
	if rec == nil {
		rec = metrics.Nop{}
	}
	ta := NewTokenAuthority(db, rm, newAccessTokens(t), rec, logging.Nop{})
	ta.now = func() time.Time { return testNow }
	return ta
}

// fakeHash keeps bcrypt out of service tests.
func fakeHash(p string) (string, error) { return "h:" + p, nil }

func fakeVerify(p, h string) bool { return h == "h:"+p }

// --- fake repositories ---

type fakeTokensRepo struct {
	mu     sync.Mutex
	rows   map[string]*models.TokenRecord
	nextID int64

	collisions int // next Inserts to report as collisions
	inserts    int
	err        error
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{rows: map[string]*models.TokenRecord{}}
}

func (f *fakeTokensRepo) put(rec models.TokenRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	f.rows[rec.Token] = &rec
}

func (f *fakeTokensRepo) byUser(userID int64, kind models.TokenKind) []*models.TokenRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TokenRecord
	for _, r := range f.rows {
		if r.UserID == userID && r.Kind == kind {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeTokensRepo) Insert(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.err != nil {
		return nil, f.err
	}
	if f.collisions > 0 {
		f.collisions--
		return nil, common.ErrTokenCollision
	}
	if _, ok := f.rows[rec.Token]; ok {
		return nil, common.ErrTokenCollision
	}
	f.nextID++
	cp := *rec
	cp.ID = f.nextID
	f.rows[rec.Token] = &cp
	rec.ID = cp.ID
	return rec, nil
}

func (f *fakeTokensRepo) Find(ctx context.Context, token string) (*models.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rows[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeTokensRepo) ValidateAndDelete(ctx context.Context, token string, kind models.TokenKind, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	r, ok := f.rows[token]
	if !ok || r.Kind != kind || r.Expired(now) {
		return 0, common.ErrorNotFound
	}
	delete(f.rows, token)
	return r.UserID, nil
}

func (f *fakeTokensRepo) DeleteByToken(ctx context.Context, token string, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	r, ok := f.rows[token]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(f.rows, token)
	return true, nil
}

func (f *fakeTokensRepo) DeleteByID(ctx context.Context, id int64, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for k, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			delete(f.rows, k)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTokensRepo) DeleteAllByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for k, r := range f.rows {
		if r.UserID == userID && r.Kind == kind {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokensRepo) ListByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) ([]*models.TokenRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser(userID, kind), nil
}

func (f *fakeTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for k, r := range f.rows {
		if r.Expired(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[int64]*models.Credential
	nextID int64
	err    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[int64]*models.Credential{}}
}

func (f *fakeUsersRepo) add(mail, hash string) int64 {
	c, _ := f.Create(context.Background(), &models.Credential{Mail: mail, PasswordHash: hash})
	return c.UserID
}

func (f *fakeUsersRepo) hashOf(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[userID]; ok {
		return c.PasswordHash
	}
	return ""
}

func (f *fakeUsersRepo) Create(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if strings.EqualFold(u.Mail, c.Mail) {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	cp := *c
	cp.UserID = f.nextID
	f.byID[cp.UserID] = &cp
	c.UserID = cp.UserID
	return c, nil
}

func (f *fakeUsersRepo) GetByMail(ctx context.Context, mail string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if strings.EqualFold(u.Mail, mail) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, userID int64) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

type fakeRolesRepo struct {
	mu    sync.Mutex
	roles map[int64]models.RoleSet
	err   error
}

func newFakeRolesRepo() *fakeRolesRepo {
	return &fakeRolesRepo{roles: map[int64]models.RoleSet{}}
}

func (f *fakeRolesRepo) RolesOf(ctx context.Context, userID int64) (models.RoleSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := models.NewRoleSet()
	for r := range f.roles[userID] {
		out[r] = struct{}{}
	}
	return out, nil
}

func (f *fakeRolesRepo) Grant(ctx context.Context, userID int64, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.roles[userID] == nil {
		f.roles[userID] = models.NewRoleSet()
	}
	f.roles[userID][role] = struct{}{}
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTokensRepo
	r *fakeRolesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), t: newFakeTokensRepo(), r: newFakeRolesRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository           { return m.u }
func (m *fakeRepoManager) Tokens(db dbx.DBTX) tokens.Repository         { return m.t }
func (m *fakeRepoManager) Roles(db dbx.DBTX) roles.Repository           { return m.r }

// --- fake collaborators ---

type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	logins   []bool
	refresh  []bool
	issued   []string
	resolved []string
	swept    int64
}

func (m *recordingMetrics) Login(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, ok)
}

func (m *recordingMetrics) Refresh(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = append(m.refresh, ok)
}

func (m *recordingMetrics) TokenIssued(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, kind)
}

func (m *recordingMetrics) IdentityResolved(source, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, source+"/"+outcome)
}

func (m *recordingMetrics) TokensSwept(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept += n
}

type sentMail struct {
	kind   string
	to     string
	secret string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendPasswordReset(ctx context.Context, mail string, token string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: "reset", to: mail, secret: token})
	return nil
}

func (m *fakeMailer) SendInvite(ctx context.Context, mail string, password string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: "invite", to: mail, secret: password})
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }
