package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"security-gate/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient é um mock do subconjunto de redis.Cmdable usado pelo sink
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedisClient) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	args := m.Called(ctx, key, start, stop)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockRedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	args := m.Called(ctx, key, start, stop)
	return args.Get(0).(*redis.StringSliceCmd)
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func TestRedisEventSink_Record(t *testing.T) {
	client := new(MockRedisClient)
	sink := newRedisEventSink(client, "", 50, nil)

	event := domain.SecurityEvent{
		ID:       "evt-1",
		ClientIP: "10.0.0.5",
		Status:   429,
		Outcome:  string(domain.VerdictRateLimited),
		Reason:   "per minute",
	}

	client.On("LPush", mock.Anything, DefaultEventsKey, mock.MatchedBy(func(values []interface{}) bool {
		if len(values) != 1 {
			return false
		}
		var decoded domain.SecurityEvent
		if err := json.Unmarshal(values[0].([]byte), &decoded); err != nil {
			return false
		}
		return decoded.ID == "evt-1" && decoded.Reason == "per minute"
	})).Return(redis.NewIntResult(1, nil)).Once()
	client.On("LTrim", mock.Anything, DefaultEventsKey, int64(0), int64(49)).Return(redis.NewStatusResult("OK", nil)).Once()

	err := sink.Record(context.Background(), event)

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestRedisEventSink_RecordPushFailure(t *testing.T) {
	client := new(MockRedisClient)
	sink := newRedisEventSink(client, "events", 10, nil)

	client.On("LPush", mock.Anything, "events", mock.Anything).Return(redis.NewIntResult(0, errors.New("connection refused"))).Once()

	err := sink.Record(context.Background(), domain.SecurityEvent{ID: "evt-2"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	client.AssertNotCalled(t, "LTrim", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedisEventSink_Recent(t *testing.T) {
	client := new(MockRedisClient)
	sink := newRedisEventSink(client, "events", 100, nil)

	first, _ := json.Marshal(domain.SecurityEvent{ID: "evt-2", Timestamp: time.Unix(200, 0).UTC()})
	second, _ := json.Marshal(domain.SecurityEvent{ID: "evt-1", Timestamp: time.Unix(100, 0).UTC()})

	client.On("LRange", mock.Anything, "events", int64(0), int64(9)).
		Return(redis.NewStringSliceResult([]string{string(first), "not-json", string(second)}, nil)).Once()

	events, err := sink.Recent(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-2", events[0].ID)
	assert.Equal(t, "evt-1", events[1].ID)
}

func TestRedisEventSink_RecentClampsLimit(t *testing.T) {
	client := new(MockRedisClient)
	sink := newRedisEventSink(client, "events", 5, nil)

	client.On("LRange", mock.Anything, "events", int64(0), int64(4)).
		Return(redis.NewStringSliceResult([]string{}, nil)).Twice()

	_, err := sink.Recent(context.Background(), 0)
	require.NoError(t, err)
	_, err = sink.Recent(context.Background(), 500)
	require.NoError(t, err)

	client.AssertExpectations(t)
}

func TestRedisEventSink_Health(t *testing.T) {
	client := new(MockRedisClient)
	sink := newRedisEventSink(client, "events", 5, nil)

	client.On("Ping", mock.Anything).Return(redis.NewStatusResult("", errors.New("timeout"))).Once()
	err := sink.Health(context.Background())
	assert.ErrorIs(t, err, domain.ErrSinkUnavailable)

	client.On("Ping", mock.Anything).Return(redis.NewStatusResult("PONG", nil)).Once()
	assert.NoError(t, sink.Health(context.Background()))

	// Close é no-op quando o cliente não é *redis.Client
	assert.NoError(t, sink.Close())
}
