package flag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/SlpAus/flag-training-backend/internal/module"
	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/SlpAus/flag-training-backend/internal/platform/database/dbtest"
	"github.com/SlpAus/flag-training-backend/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goldenFlag = "ca5b884487403b2f3502d7af29348dcc6c6cdf24e8f4c3ec1eda105b57304239dc1daaf48c7f3859faba063a8ce03d901f93ed2c4f9ad40db5b720cb7a1d807f"

type fakeModules map[int64]*module.Module

func (f fakeModules) Get(_ context.Context, id int64) (*module.Module, error) {
	m, ok := f[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return m, nil
}

type fakeSecrets struct {
	mu     sync.Mutex
	users  map[int64][]byte
	server []byte
	err    error
}

func (f *fakeSecrets) UserSecret(_ context.Context, userID int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.users[userID], nil
}

func (f *fakeSecrets) ServerSecret(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server, nil
}

func seq(from byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = from + byte(i)
	}
	return b
}

func strPtr(s string) *string { return &s }

func fixture() (fakeModules, *fakeSecrets) {
	modules := fakeModules{
		1: {ID: 1, Name: "dynamic", FlagEnabled: true, Secret: strPtr("baseFlag")},
		2: {ID: 2, Name: "exact", FlagEnabled: true, FlagExact: true, Secret: strPtr("thisisaflag")},
		3: {ID: 3, Name: "disabled", FlagEnabled: false, Secret: strPtr("baseFlag")},
		4: {ID: 4, Name: "broken", FlagEnabled: true},
	}
	secrets := &fakeSecrets{
		users: map[int64][]byte{
			10: seq(0x00, 16),
			11: seq(0x40, 16),
		},
		server: seq(0x10, 16),
	}
	return modules, secrets
}

func TestDerive_GoldenVector(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)

	got, err := engine.Derive(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, goldenFlag, got)
	assert.Len(t, got, 128)
	assert.Equal(t, strings.ToLower(got), got)
}

func TestDerive_Deterministic(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	first, err := engine.Derive(ctx, 10, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Derive(ctx, 10, 1)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDerive_UniquePerUser(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	a, err := engine.Derive(ctx, 10, 1)
	require.NoError(t, err)
	b, err := engine.Derive(ctx, 11, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDerive_KeyOrderMatters(t *testing.T) {
	modules, secrets := fixture()
	// 交换用户密钥与服务器密钥后结果必须不同
	secrets.users[10], secrets.server = secrets.server, secrets.users[10]
	engine := NewEngine(modules, secrets, nil)

	got, err := engine.Derive(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.NotEqual(t, goldenFlag, got)
}

func TestDerive_Errors(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)

	tests := []struct {
		name     string
		userID   int64
		moduleID int64
		want     error
	}{
		{name: "zero user", userID: 0, moduleID: 1, want: apperr.ErrInvalidInput},
		{name: "negative module", userID: 10, moduleID: -1, want: apperr.ErrInvalidInput},
		{name: "unknown module", userID: 10, moduleID: 99, want: apperr.ErrNotFound},
		{name: "disabled flag", userID: 10, moduleID: 3, want: apperr.ErrInvalidState},
		{name: "exact module", userID: 10, moduleID: 2, want: apperr.ErrInvalidState},
		{name: "enabled without secret", userID: 10, moduleID: 4, want: apperr.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Derive(context.Background(), tt.userID, tt.moduleID)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, got)
		})
	}
}

func TestDerive_SecretFailureIsInfrastructure(t *testing.T) {
	modules, secrets := fixture()
	secrets.err = errors.New("storage unreachable")
	engine := NewEngine(modules, secrets, nil)

	_, err := engine.Derive(context.Background(), 10, 1)
	require.Error(t, err)
	assert.Nil(t, apperr.Kind(err))
}

func TestVerify_CaseInsensitive(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	for _, candidate := range []string{goldenFlag, strings.ToLower(goldenFlag), strings.ToUpper(goldenFlag)} {
		ok, err := engine.Verify(ctx, 10, 1, strPtr(candidate))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for _, candidate := range []string{"thisisaflag", "THISISAFLAG", "ThisIsAFlag"} {
		ok, err := engine.Verify(ctx, 10, 2, strPtr(candidate))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerify_ExactScenario(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	ok, err := engine.Verify(ctx, 10, 2, strPtr("THISISAFLAG"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Verify(ctx, 10, 2, strPtr("thisisaflaginvalid"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_OtherUsersFlagIsWrong(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)

	ok, err := engine.Verify(context.Background(), 11, 1, strPtr(goldenFlag))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_Errors(t *testing.T) {
	modules, secrets := fixture()
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	_, err := engine.Verify(ctx, 10, 1, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = engine.Verify(ctx, 10, 99, strPtr("x"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = engine.Verify(ctx, 10, 3, strPtr("x"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = engine.Verify(ctx, -1, 2, strPtr("x"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestVerify_ObserverCannotAffectResult(t *testing.T) {
	modules, secrets := fixture()
	var seen []Outcome
	recorder := ObserverFunc(func(_ context.Context, o Outcome) error {
		seen = append(seen, o)
		return nil
	})
	failing := ObserverFunc(func(context.Context, Outcome) error { return errors.New("sink down") })
	panicking := ObserverFunc(func(context.Context, Outcome) error { panic("boom") })

	engine := NewEngine(modules, secrets, nil, failing, panicking, recorder)

	ok, err := engine.Verify(context.Background(), 10, 1, strPtr(goldenFlag))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Verify(context.Background(), 10, 2, strPtr("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, seen, 2)
	assert.Equal(t, Outcome{UserID: 10, ModuleID: 1, Valid: true, CheckedAt: seen[0].CheckedAt}, seen[0])
	assert.True(t, seen[1].Exact)
	assert.False(t, seen[1].Valid)
}

func TestVerify_ObserverNotCalledOnError(t *testing.T) {
	modules, secrets := fixture()
	calls := 0
	engine := NewEngine(modules, secrets, nil, ObserverFunc(func(context.Context, Outcome) error {
		calls++
		return nil
	}))

	_, err := engine.Verify(context.Background(), 10, 3, strPtr("x"))
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestRotation_InvalidatesDerivedFlags(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, module.Migrate(db))
	require.NoError(t, secret.Migrate(db))

	modules := module.NewRepository(db)
	secrets := secret.NewStore(db)
	engine := NewEngine(modules, secrets, nil)
	ctx := context.Background()

	m := &module.Module{Name: "untouched", FlagEnabled: true, Secret: strPtr("baseFlag")}
	require.NoError(t, modules.Create(ctx, m))

	before, err := engine.Derive(ctx, 1, m.ID)
	require.NoError(t, err)
	ok, err := engine.Verify(ctx, 1, m.ID, strPtr(before))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, secrets.RotateServerSecret(ctx))

	after, err := engine.Derive(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	ok, err = engine.Verify(ctx, 1, m.ID, strPtr(before))
	require.NoError(t, err)
	assert.False(t, ok)
}
