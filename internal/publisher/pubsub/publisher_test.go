package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

const testProject = "wiki-test"

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), testProject, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishTitleBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	topic := "projects/" + testProject + "/topics/titles"
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
	require.NoError(t, err)

	pub := New(client)
	defer pub.Stop()
	batch := crawler.TitleBatch{RunID: "run-7", Namespace: 4, Batch: 2, Titles: []string{"A", "B"}}

	id, err := pub.Publish(ctx, topic, batch)

	require.NoError(t, err)
	require.NotEmpty(t, id)
	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "run-7", msgs[0].Attributes["run_id"])
	require.Equal(t, "4", msgs[0].Attributes["namespace"])
	require.Equal(t, "2", msgs[0].Attributes["batch"])

	var decoded crawler.TitleBatch
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, batch, decoded)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "titles", crawler.TitleBatch{})
	require.Error(t, err)
}

func TestAttributesForOtherPayloads(t *testing.T) {
	t.Parallel()

	require.Empty(t, attributesFor(map[string]string{"k": "v"}))
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
