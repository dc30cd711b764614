package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mberto10/researchctl/internal/subscription"
)

// Adapted from registry/store/mongo/mongo_test.go's setupMongoDB: a single
// mongo:7 GenericContainer started once for the package's test binary
// (here via TestMain rather than a lazily-called setup function), skipping
// every integration test rather than failing the run when Docker is
// unavailable. Upgraded to go.mongodb.org/mongo-driver/v2, whose
// mongo.Connect drops the context parameter the v1 driver took.
var (
	testClient      *mongodriver.Client
	testContainer   testcontainers.Container
	skipIntegration bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		}
		testContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, integration tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else {
		host, err := testContainer.Host(ctx)
		if err != nil {
			fmt.Printf("failed to get container host: %v\n", err)
			skipIntegration = true
		} else {
			port, err := testContainer.MappedPort(ctx, "27017")
			if err != nil {
				fmt.Printf("failed to get container port: %v\n", err)
				skipIntegration = true
			} else {
				uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
				testClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
				if err != nil {
					fmt.Printf("failed to connect to mongo: %v\n", err)
					skipIntegration = true
				} else if err := testClient.Ping(ctx, nil); err != nil {
					fmt.Printf("failed to ping mongo: %v\n", err)
					skipIntegration = true
				}
			}
		}
	}

	code := m.Run()

	if testClient != nil {
		_ = testClient.Disconnect(context.Background())
	}
	if testContainer != nil {
		_ = testContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

func testCollection(t *testing.T) *mongodriver.Collection {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	coll := testClient.Database("researchctl_test").Collection("subscriptions_" + t.Name())
	require.NoError(t, coll.Drop(context.Background()))
	return coll
}

func TestStoreSaveGetListDelete(t *testing.T) {
	ctx := context.Background()
	store := New(testCollection(t))

	sub := subscription.Subscription{
		ID:        "sub-1",
		Topic:     "semiconductor export controls",
		Frequency: "daily",
		Identity:  subscription.Identity{UserID: "u1", TaskID: "t1"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, sub))

	got, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, sub.Topic, got.Topic)
	require.Equal(t, sub.Frequency, got.Frequency)
	require.Equal(t, sub.Identity, got.Identity)

	daily, err := store.ListByFrequency(ctx, "daily")
	require.NoError(t, err)
	require.Len(t, daily, 1)

	require.NoError(t, store.Delete(ctx, "sub-1"))
	_, err = store.Get(ctx, "sub-1")
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := New(testCollection(t))
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestStoreSaveUpserts(t *testing.T) {
	ctx := context.Background()
	store := New(testCollection(t))

	sub := subscription.Subscription{ID: "sub-2", Topic: "v1", Frequency: "weekly"}
	require.NoError(t, store.Save(ctx, sub))

	sub.Topic = "v2"
	require.NoError(t, store.Save(ctx, sub))

	got, err := store.Get(ctx, "sub-2")
	require.NoError(t, err)
	require.Equal(t, "v2", got.Topic)
}
