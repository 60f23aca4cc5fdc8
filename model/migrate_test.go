package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	alice := &model.User{Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(alice).Error)
	assert.Greater(t, alice.ID, int64(0))

	bob := &model.User{Email: "bob@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(bob).Error)

	var found model.User
	require.NoError(t, db.First(&found, alice.ID).Error)
	assert.Equal(t, "alice@example.com", found.Email)

	fr := &model.FriendRequest{FromUserID: alice.ID, ToUserID: bob.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(fr).Error)
	assert.Greater(t, fr.ID, int64(0))
	assert.False(t, fr.Accepted)

	al := &model.AuditLog{TraceID: "trace-001", Action: "signup", CreatedAt: time.Now()}
	require.NoError(t, db.Create(al).Error)
}

func TestUser_EmailUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.User{Email: "dup@example.com", PasswordHash: "x"}).Error)
	assert.Error(t, db.Create(&model.User{Email: "dup@example.com", PasswordHash: "y"}).Error)
}

func TestFriendRequest_PairUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&model.FriendRequest{FromUserID: 1, ToUserID: 2, CreatedAt: now}).Error)
	assert.Error(t, db.Create(&model.FriendRequest{FromUserID: 1, ToUserID: 2, CreatedAt: now}).Error)
	// The reverse direction is a different ordered pair.
	assert.NoError(t, db.Create(&model.FriendRequest{FromUserID: 2, ToUserID: 1, CreatedAt: now}).Error)
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	require.NoError(t, model.AutoMigrate(db))
	assert.True(t, db.Migrator().HasIndex(&model.FriendRequest{}, model.FriendRequestPairIndex))
}

func TestAuditLog_NullableJSON(t *testing.T) {
	db := testutil.SetupTestDB(t)
	uid := int64(7)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "t1", UserID: &uid, Action: "friend_request"}).Error)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "t2", Action: "login"}).Error)

	var rows []model.AuditLog
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, uid, *rows[0].UserID)
	assert.Nil(t, rows[1].UserID)
	assert.Empty(t, rows[1].Request)
	assert.False(t, rows[0].CreatedAt.IsZero())
}
