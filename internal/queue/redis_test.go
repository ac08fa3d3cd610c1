package queue

import (
	"context"
	"testing"

	"imss/harvester/internal/config"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/domain/task"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	q, err := NewRedisQueue(context.Background(), rdb, config.RedisConfig{ConsumerGroup: "imss_harvester"})
	require.NoError(t, err)
	return q, rdb
}

func TestNewRedisQueueReusesExistingGroups(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	_, err := q.AddTask(ctx, &task.RecordRetryTask{Stub: domain.RecordStub{ID: "7"}})
	require.NoError(t, err)

	again, err := NewRedisQueue(ctx, rdb, config.RedisConfig{ConsumerGroup: "imss_harvester"})
	require.NoError(t, err)

	msg, err := again.GetTask(ctx, "worker", again.StreamName(task.RecordRetryTaskType))
	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestGetTaskReturnsNilOnceDrained(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	stream := q.StreamName(task.RecordRetryTaskType)

	msg, err := q.GetTask(ctx, "worker", stream)
	require.NoError(t, err)
	assert.Nil(t, msg)

	id, err := q.AddTask(ctx, &task.RecordRetryTask{Stub: domain.RecordStub{ID: "42"}, Error: "timeout"})
	require.NoError(t, err)

	msg, err = q.GetTask(ctx, "worker", stream)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, task.RecordRetryTaskType, msg.Values["task_type"])

	retryTask, err := task.UnmarshalTask[*task.RecordRetryTask]([]byte(msg.Values["task_data"].(string)))
	require.NoError(t, err)
	assert.Equal(t, domain.RecordID("42"), retryTask.Stub.ID)

	msg, err = q.GetTask(ctx, "worker", stream)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestAutoClaimTakesOverUnackedMessages(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	stream := q.StreamName(task.LeafRetryTaskType)

	leaf := domain.Leaf{PeriodID: "2019", CategoryID: "3", SubcategoryID: "45"}
	id, err := q.AddTask(ctx, &task.LeafRetryTask{Leaf: leaf, Stage: domain.LeafStageOverview})
	require.NoError(t, err)

	msg, err := q.GetTask(ctx, "crashed", stream)
	require.NoError(t, err)
	require.NotNil(t, msg)

	claimed, err := q.AutoClaim(ctx, "retry", stream)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)

	require.NoError(t, q.AckTask(ctx, stream, id))

	claimed, err = q.AutoClaim(ctx, "retry", stream)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
