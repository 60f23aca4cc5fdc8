package account

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func seedDirectory(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	people := []struct{ email, first, last string }{
		{"amy@example.com", "Amy", "Winehouse"},
		{"amos@example.com", "Amos", "Lee"},
		{"lee@example.com", "Brenda", "Lee"},
		{"lena@example.com", "Lena", "Horne"},
		{"under@example.com", "Un_der", "Score"},
	}
	for _, p := range people {
		u, err := svc.Signup(ctx, p.email, "secret123", "secret123")
		require.NoError(t, err)
		_, err = svc.UpdateName(ctx, u.ID, &p.first, &p.last)
		require.NoError(t, err)
	}
}

func emails(res *SearchResult) []string {
	out := make([]string, 0, len(res.Users))
	for _, u := range res.Users {
		out = append(out, u.Email)
	}
	return out
}

func TestSearch_EmptyKeywordListsAll(t *testing.T) {
	svc := newService(t)
	seedDirectory(t, svc)

	res, err := svc.Search(context.Background(), "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)
	assert.Len(t, res.Users, 5)
}

func TestSearch_ExactEmailWins(t *testing.T) {
	svc := newService(t)
	seedDirectory(t, svc)

	res, err := svc.Search(context.Background(), "LEE@example.com", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, []string{"lee@example.com"}, emails(res))
}

func TestSearch_NamePrefixCaseInsensitive(t *testing.T) {
	svc := newService(t)
	seedDirectory(t, svc)

	res, err := svc.Search(context.Background(), "am", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com", "amos@example.com"}, emails(res))

	res, err = svc.Search(context.Background(), "LEE", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"amos@example.com", "lee@example.com"}, emails(res))
}

func TestSearch_PrefixNotSubstring(t *testing.T) {
	svc := newService(t)
	seedDirectory(t, svc)

	res, err := svc.Search(context.Background(), "ena", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Users)
}

func TestSearch_EscapesWildcards(t *testing.T) {
	svc := newService(t)
	seedDirectory(t, svc)

	res, err := svc.Search(context.Background(), "un_", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"under@example.com"}, emails(res))

	res, err = svc.Search(context.Background(), "%", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestSearch_Pagination(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := svc.Signup(ctx, fmt.Sprintf("p%d@example.com", i), "secret123", "secret123")
		require.NoError(t, err)
	}

	page1, err := svc.Search(ctx, "", 1, 3)
	require.NoError(t, err)
	page3, err := svc.Search(ctx, "", 3, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(7), page1.Total)
	assert.Equal(t, []string{"p0@example.com", "p1@example.com", "p2@example.com"}, emails(page1))
	assert.Equal(t, []string{"p6@example.com"}, emails(page3))

	beyond, err := svc.Search(ctx, "", 10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), beyond.Total)
	assert.Empty(t, beyond.Users)
}

func TestSearch_HugePageIsEmptyNotFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, "only@example.com", "secret123", "secret123")
	require.NoError(t, err)

	res, err := svc.Search(ctx, "", math.MaxInt, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Empty(t, res.Users)
}
