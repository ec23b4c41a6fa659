package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulikov/securetext/internal/common"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStaticToken(t *testing.T) {
	got, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = StaticToken("").Token(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestCachingTokenSource_CachesUntilExpiry(t *testing.T) {
	calls := 0
	fresh := signedToken(t, time.Now().Add(time.Hour))
	src := NewCachingTokenSource(func(ctx context.Context) (string, error) {
		calls++
		return fresh, nil
	})

	for range 3 {
		got, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fresh, got)
	}
	assert.Equal(t, 1, calls, "unexpired token must be served from cache")
}

func TestCachingTokenSource_RefreshesExpired(t *testing.T) {
	calls := 0
	src := NewCachingTokenSource(func(ctx context.Context) (string, error) {
		calls++
		// always already expired, so every Token call refreshes
		return signedToken(t, time.Now().Add(-time.Minute)), nil
	})

	_, err := src.Token(context.Background())
	require.NoError(t, err)
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachingTokenSource_RefreshFailure(t *testing.T) {
	src := NewCachingTokenSource(func(ctx context.Context) (string, error) {
		return "", errors.New("gateway down")
	})

	_, err := src.Token(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestCachingTokenSource_OpaqueTokenNeverExpires(t *testing.T) {
	calls := 0
	src := NewCachingTokenSource(func(ctx context.Context) (string, error) {
		calls++
		return "not-a-jwt", nil
	})

	for range 3 {
		_, err := src.Token(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestFileTokenSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("tok-from-file\n"), 0o600))

	src := NewFileTokenSource(path)
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-from-file", tok)

	// opaque token is cached, the file is not re-read per call
	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0o600))
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-from-file", tok)
}

func TestFileTokenSource_ExpiredTokenRereadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte(signedToken(t, time.Now().Add(-time.Minute))), 0o600))

	src := NewFileTokenSource(path)
	_, err := src.Token(context.Background())
	require.NoError(t, err)

	// the cached token is already expired, so the next call re-reads the
	// file and picks up the rotated token
	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0o600))
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", tok)
}

func TestFileTokenSource_MissingOrEmptyFile(t *testing.T) {
	dir := t.TempDir()

	src := NewFileTokenSource(filepath.Join(dir, "absent"))
	_, err := src.Token(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	src = NewFileTokenSource(empty)
	_, err = src.Token(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}
