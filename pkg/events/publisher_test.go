package events

import (
	"context"
	"testing"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const testProject = "test-project"

func fakePubSub(t *testing.T) (*pstest.Server, option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, option.WithGRPCConn(conn)
}

func TestNotifyBatchPublished(t *testing.T) {
	ctx := context.Background()
	srv, conn := fakePubSub(t)

	admin, err := pubsub.NewClient(ctx, testProject, conn)
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "email-batches")
	require.NoError(t, err)

	publisher, err := NewPublisher(ctx, testProject, "email-batches", "", conn)
	require.NoError(t, err)
	defer publisher.Close()

	event := &statsdomain.BatchPublishedEvent{
		BatchID:     "b1",
		OwnerEmail:  "me@example.com",
		Count:       3,
		OldestAt:    1_700_000_000_000,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.NotifyBatchPublished(ctx, event))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, statsdomain.RoutingKeyBatchPublished, msgs[0].Attributes["routingKey"])
	assert.Equal(t, "me@example.com", msgs[0].Attributes["ownerEmail"])

	var got statsdomain.BatchPublishedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "b1", got.BatchID)
	assert.Equal(t, 3, got.Count)
}

func TestNewPublisherMissingTopic(t *testing.T) {
	_, conn := fakePubSub(t)

	_, err := NewPublisher(context.Background(), testProject, "nope", "", conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
