package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/events"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
)

// skipIntegrationTests is the environment variable that controls whether to skip integration tests.
const skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"
const natsImg = "nats:2.11.6-alpine"

type PublisherSuite struct {
	suite.Suite
	ctx           context.Context
	logger        *slog.Logger
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
	js            jetstream.JetStream
}

func (s *PublisherSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	s.nc, err = NewClient(natsURL, 5*time.Second)
	require.NoError(s.T(), err)
	s.js, err = NewJetStreamContext(s.nc)
	require.NoError(s.T(), err)
}

func (s *PublisherSuite) TearDownSuite() {
	s.nc.Close()
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.logger.Error("Failed to terminate NATS container", "error", err)
	}
}

func TestPublisherIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) TestPublishCartSynced() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	stream, err := EnsureStream(ctx, s.js, "CART_SYNC_TEST", events.CartSyncedWildcard)
	s.Require().NoError(err)
	// a second call updates in place
	_, err = EnsureStream(ctx, s.js, "CART_SYNC_TEST", events.CartSyncedWildcard)
	s.Require().NoError(err)

	event := events.CartSynced{
		Identity:  "alice@example.com",
		Op:        "add",
		ItemID:    "p-1",
		Quantity:  1,
		Succeeded: true,
		At:        time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(NewNatsPublisher(s.js).Publish(ctx, event))

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: "cart.synced.add",
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	s.Require().NoError(err)
	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	s.Require().NoError(err)
	s.Require().NoError(msg.Ack())

	var got events.CartSynced
	s.Require().NoError(json.Unmarshal(msg.Data(), &got))
	s.Equal("cart.synced.add", msg.Subject())
	s.Equal(event.Identity, got.Identity)
	s.Equal(event.ItemID, got.ItemID)
	s.True(got.Succeeded)
}

func (s *PublisherSuite) TestPublishWithoutStreamFails() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	err := NewNatsPublisher(s.js).Publish(ctx, unroutedEvent{})

	s.Error(err)
}

type unroutedEvent struct{}

func (unroutedEvent) Subject() string          { return "nowhere.to.go" }
func (unroutedEvent) Payload() ([]byte, error) { return []byte("{}"), nil }

func TestEnsureStream_RequiresNameAndSubjects(t *testing.T) {
	_, err := EnsureStream(context.Background(), nil, "", "a.b")
	require.Error(t, err)
	_, err = EnsureStream(context.Background(), nil, "S")
	require.Error(t, err)
}
