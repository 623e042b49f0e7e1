package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
)

func TestUserUniqueness(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, user.User{Username: "alice", Role: user.RoleAdmin})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = store.CreateUser(ctx, user.User{Username: "Alice", Role: user.RoleViewer})
	assert.Error(t, err)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, user.User{Username: "bob", Role: user.RoleAnalyst})
	require.NoError(t, err)

	created.Role = user.RoleAdmin
	created.CreatedAt = time.Time{}
	updated, err := store.UpdateUser(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, updated.Role)
	assert.False(t, updated.CreatedAt.IsZero())
}

func TestListDueRules(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := store.CreateRule(ctx, dq.Rule{
		Name: "due", Check: dq.CheckRowCount, Enabled: true,
		Schedule: "* * * * *", NextRun: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = store.CreateRule(ctx, dq.Rule{
		Name: "future", Check: dq.CheckRowCount, Enabled: true,
		Schedule: "* * * * *", NextRun: now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = store.CreateRule(ctx, dq.Rule{
		Name: "manual", Check: dq.CheckRowCount, Enabled: true,
		NextRun: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	rules, err := store.ListDueRules(ctx, now)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, due.ID, rules[0].ID)
}

func TestRuleParamsAreCloned(t *testing.T) {
	store := New()
	ctx := context.Background()

	params := map[string]string{"min": "1"}
	created, err := store.CreateRule(ctx, dq.Rule{Name: "rows", Check: dq.CheckRowCount, Params: params})
	require.NoError(t, err)

	params["min"] = "999"
	got, err := store.GetRule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Params["min"])
}

func TestRunsOrderedNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()

	rule, err := store.CreateRule(ctx, dq.Rule{Name: "rows", Check: dq.CheckRowCount})
	require.NoError(t, err)

	first, err := store.CreateRun(ctx, dq.Run{RuleID: rule.ID, Status: dq.RunPassed})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := store.CreateRun(ctx, dq.Run{RuleID: rule.ID, Status: dq.RunFailed})
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, rule.ID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	limited, err := store.ListRuns(ctx, rule.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestViolationsScopedToRun(t *testing.T) {
	store := New()
	ctx := context.Background()

	run, err := store.CreateRun(ctx, dq.Run{RuleID: "r1", Status: dq.RunFailed})
	require.NoError(t, err)

	_, err = store.CreateViolation(ctx, dq.Violation{RunID: run.ID, RuleID: "r1", Message: "nulls found"})
	require.NoError(t, err)
	_, err = store.CreateViolation(ctx, dq.Violation{RunID: "other", RuleID: "r2", Message: "elsewhere"})
	require.NoError(t, err)

	got, err := store.ListViolations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nulls found", got[0].Message)
}

func TestExpiredSessionCleanup(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.CreateSession(ctx, user.Session{TokenHash: "old", UserID: "u1", ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, user.Session{TokenHash: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	require.NoError(t, store.DeleteExpiredSessions(ctx, now))

	_, err = store.GetSessionByTokenHash(ctx, "old")
	assert.Error(t, err)
	_, err = store.GetSessionByTokenHash(ctx, "live")
	assert.NoError(t, err)
}
