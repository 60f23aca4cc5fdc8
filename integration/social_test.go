package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestLifecycle(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	aliceID, _, alice := ts.NewUser(t, "alice")
	bobID, _, bob := ts.NewUser(t, "bob")
	carolID, _, carol := ts.NewUser(t, "carol")

	// Alice -> Bob, Carol -> Bob.
	var ab, cb struct {
		ID int64 `json:"id"`
	}
	resp := ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": bobID}, alice)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ReadJSON(t, resp, &ab)
	resp = ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": bobID}, carol)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ReadJSON(t, resp, &cb)

	// Bob sees both pending.
	var pending struct {
		Pending []struct {
			ID       int64 `json:"id"`
			FromUser int64 `json:"from_user"`
		} `json:"pending_requests"`
	}
	resp = ts.Get(t, "/api/pending-requests/", bob)
	ReadJSON(t, resp, &pending)
	require.Len(t, pending.Pending, 2)
	assert.Equal(t, aliceID, pending.Pending[0].FromUser)
	assert.Equal(t, carolID, pending.Pending[1].FromUser)

	// Bob accepts Alice, rejects Carol.
	resp = ts.Do(t, http.MethodPatch, fmt.Sprintf("/api/friend-request/accept/%d/", ab.ID), nil, bob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Do(t, http.MethodDelete, fmt.Sprintf("/api/friend-request/reject/%d/", cb.ID), nil, bob)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Nothing pending any more.
	resp = ts.Get(t, "/api/pending-requests/", bob)
	ReadJSON(t, resp, &pending)
	assert.Empty(t, pending.Pending)

	// Friendship is symmetric.
	var friends struct {
		Friends []struct {
			ID int64 `json:"id"`
		} `json:"friends"`
	}
	resp = ts.Get(t, "/api/friends/", alice)
	ReadJSON(t, resp, &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, bobID, friends.Friends[0].ID)

	resp = ts.Get(t, "/api/friends/", bob)
	ReadJSON(t, resp, &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, aliceID, friends.Friends[0].ID)

	resp = ts.Get(t, "/api/friends/", carol)
	ReadJSON(t, resp, &friends)
	assert.Empty(t, friends.Friends)

	// Carol can try again after the rejection.
	resp = ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": bobID}, carol)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Audit trail is written once the worker flushes.
	ts.Audit.Stop(context.Background())
	var actions []string
	require.NoError(t, ts.DB.Model(&model.AuditLog{}).Pluck("action", &actions).Error)
	assert.Contains(t, actions, audit.ActionFriendRequest)
	assert.Contains(t, actions, audit.ActionFriendAccept)
	assert.Contains(t, actions, audit.ActionFriendReject)
}

func TestFriendRequestRateLimit(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	_, _, sender := ts.NewUser(t, "spammer")
	for i := 0; i < 4; i++ {
		target := ts.Signup(t, UniqueEmail("target"))
		resp := ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": target}, sender)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "request %d", i+1)
		resp.Body.Close()
	}

	target := ts.Signup(t, UniqueEmail("target"))
	resp := ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": target}, sender)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestFriendEventsStream(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	aliceID, _, alice := ts.NewUser(t, "alice")
	bobID, _, bob := ts.NewUser(t, "bob")

	bobEvents := ts.OpenEvents(t, bob)
	defer bobEvents.Close()
	aliceEvents := ts.OpenEvents(t, alice)
	defer aliceEvents.Close()

	resp := ts.PostJSON(t, "/api/friend-request/", map[string]int64{"to_user": bobID}, alice)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var edge struct {
		ID int64 `json:"id"`
	}
	ReadJSON(t, resp, &edge)

	ev, ok := bobEvents.Next(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, social.EventFriendRequest, ev.Name)
	var payload social.Event
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &payload))
	assert.Equal(t, edge.ID, payload.Request.ID)
	assert.Equal(t, aliceID, payload.Request.FromUserID)

	resp = ts.Do(t, http.MethodPatch, fmt.Sprintf("/api/friend-request/accept/%d/", edge.ID), nil, bob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ev, ok = aliceEvents.Next(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, social.EventFriendAccepted, ev.Name)
}

func TestAdminMetrics(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	ts.NewUser(t, "metrics")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Graph struct {
			Users int64 `json:"users"`
		} `json:"graph"`
		Tasks []string `json:"scheduler_tasks"`
	}
	ReadJSON(t, resp, &body)
	assert.Equal(t, []string{"graph_stats"}, body.Tasks)
}
