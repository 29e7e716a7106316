package ephemeral

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkayan/accounts/internal/record"
	"github.com/getkayan/accounts/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func hashKeys(t *testing.T, mr *miniredis.Miniredis, hash string) []string {
	t.Helper()
	keys, err := mr.HKeys(hash)
	require.NoError(t, err)
	return keys
}

func TestRedisStoreScan(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	want := map[string]string{}
	for i := 0; i < 600; i++ {
		field := fmt.Sprintf("field-%03d", i)
		value := fmt.Sprintf("value-%03d", i)
		mr.HSet("email", field, value)
		want[field] = value
	}

	got := map[string]string{}
	cur := store.Scan(ctx, "email")
	for cur.Next(ctx) {
		got[cur.Field()] = cur.Value()
	}
	require.NoError(t, cur.Err())
	require.Equal(t, want, got)
}

func TestRedisStoreScanEmptyHash(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	cur := store.Scan(ctx, "missing")
	require.False(t, cur.Next(ctx))
	require.NoError(t, cur.Err())
}

func TestRedisStoreBulkDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.HSet("captcha", "a", "1")
	mr.HSet("captcha", "b", "2")
	mr.HSet("captcha", "c", "3")

	n, err := store.BulkDelete(ctx, "captcha", []string{"a", "b", "unknown"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"c"}, hashKeys(t, mr, "captcha"))

	n, err = store.BulkDelete(ctx, "captcha", nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedisStoreInsertGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.InsertIfAbsent(ctx, "email", "k", "v1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.InsertIfAbsent(ctx, "email", "k", "v2")
	require.NoError(t, err)
	require.False(t, ok)

	v, err := store.Get(ctx, "email", "k")
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	existed, err := store.Delete(ctx, "email", "k")
	require.NoError(t, err)
	require.True(t, existed)

	_, err = store.Get(ctx, "email", "k")
	require.ErrorIs(t, err, ErrNotFound)

	existed, err = store.Delete(ctx, "email", "k")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestRedisStoreErrors(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := store.BulkDelete(ctx, "email", []string{"a"})
	require.Error(t, err)

	cur := store.Scan(ctx, "email")
	require.False(t, cur.Next(ctx))
	require.Error(t, cur.Err())
}

func TestDatasetIssueAndRedeem(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	ds := NewDataset[token.URLToken](store, DatasetEmail, record.DecodeConfirmEmail)

	value, err := record.EncodeConfirmEmail("jane@example.com", 42)
	require.NoError(t, err)

	tok, err := ds.Issue(ctx, token.GenerateURLToken, value)
	require.NoError(t, err)
	require.Len(t, tok.String(), token.URLTokenLength)

	rec, err := ds.Redeem(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, record.ConfirmEmail{Email: "jane@example.com", CreatedAt: 42}, rec)

	// Second redemption of the same token always fails.
	_, err = ds.Redeem(ctx, tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// barrierStore holds every Get until `callers` Gets have completed, so all
// redemptions read the value before any of them deletes it.
type barrierStore struct {
	HashStore
	arrived sync.WaitGroup
}

func (s *barrierStore) Get(ctx context.Context, hash, field string) (string, error) {
	v, err := s.HashStore.Get(ctx, hash, field)
	s.arrived.Done()
	s.arrived.Wait()
	return v, err
}

func TestDatasetConcurrentRedeemSucceedsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const callers = 2
	barrier := &barrierStore{HashStore: store}
	barrier.arrived.Add(callers)
	ds := NewDataset[token.URLToken](barrier, DatasetEmail, record.DecodeConfirmEmail)

	value, err := record.EncodeConfirmEmail("jane@example.com", 42)
	require.NoError(t, err)
	tok, err := ds.Issue(ctx, token.GenerateURLToken, value)
	require.NoError(t, err)

	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := ds.Redeem(ctx, tok)
			errs <- err
		}()
	}

	redeemed := 0
	for i := 0; i < callers; i++ {
		err := <-errs
		if err == nil {
			redeemed++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	require.Equal(t, 1, redeemed)
}

func TestDatasetIssueRetriesOnCollision(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	ds := NewDataset[token.CaptchaID](store, DatasetCaptcha, record.DecodeCaptchaFields)

	mr.HSet(DatasetCaptcha, "taken-1", "x")
	mr.HSet(DatasetCaptcha, "taken-2", "x")

	candidates := []token.CaptchaID{"taken-1", "taken-2", "free"}
	calls := 0
	gen := func() token.CaptchaID {
		id := candidates[calls]
		calls++
		return id
	}

	id, err := ds.Issue(ctx, gen, "value")
	require.NoError(t, err)
	require.Equal(t, token.CaptchaID("free"), id)
	require.Equal(t, 3, calls)

	keys := hashKeys(t, mr, DatasetCaptcha)
	sort.Strings(keys)
	require.Equal(t, []string{"free", "taken-1", "taken-2"}, keys)
	require.Equal(t, "x", mr.HGet(DatasetCaptcha, "taken-1"))
}

func TestDatasetRedeemUndecodable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	ds := NewDataset[token.CaptchaID](store, DatasetCaptcha, record.DecodeCaptchaFields)

	mr.HSet(DatasetCaptcha, "corrupt", "{not json")

	_, err := ds.Redeem(ctx, "corrupt")
	require.ErrorIs(t, err, ErrInvalidToken)
	require.False(t, mr.Exists(DatasetCaptcha))
}

func TestDatasetDiscard(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	ds := NewDataset[token.CaptchaID](store, DatasetCaptcha, record.DecodeCaptchaFields)

	mr.HSet(DatasetCaptcha, "id", "v")

	existed, err := ds.Discard(ctx, "id")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = ds.Discard(ctx, "id")
	require.NoError(t, err)
	require.False(t, existed)
}
