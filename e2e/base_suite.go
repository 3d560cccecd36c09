package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"livehub/auth"
	"livehub/client"
	"livehub/directory"
	"livehub/domain/event"
	"livehub/moderation"
	"livehub/observability"
	"livehub/repositories"
	"livehub/runtime"
	"livehub/runtime/workers"
	"livehub/services"
	"livehub/sink"
	"livehub/transport"
)

const tokenSecret = "e2e-shared-secret"

// BaseHubSuite boots the whole hub in-process for each test: badger, bluge,
// bus, workers, and the websocket endpoint behind an httptest server.
type BaseHubSuite struct {
	suite.Suite
	Config Config

	server   *httptest.Server
	cancel   context.CancelFunc
	db       *badger.DB
	writer   *bluge.Writer
	registry *runtime.Registry
	buffer   *runtime.OfflineBuffer
	stats    *observability.Stats
	chat     *services.ChatService
	issuer   auth.TokenIssuer
}

func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseHubSuite) SetupTest() {
	req := s.Require()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	s.db = db

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(s.T().TempDir()))
	req.NoError(err)
	s.writer = writer

	messageRepository := repositories.NewMessageRepository(db, log)
	membershipRepository := repositories.NewMembershipRepository(db, log)
	readStateRepository := repositories.NewReadStateRepository(db, log)
	searchRepository := repositories.NewSearchRepository(writer, log)

	s.registry = runtime.NewRegistry()
	index := runtime.NewMembershipIndex()
	s.buffer = runtime.NewOfflineBuffer(100)
	bus := runtime.NewBus(log, 256)
	s.stats = observability.NewStats()

	store := services.NewMessageStore(log, messageRepository, runtime.NewRoomCache(100), bus)
	readStateService := services.NewReadStateService(log, readStateRepository, store, bus)

	moderator, err := moderation.NewModerator(moderation.DefaultWords(), '*')
	req.NoError(err)

	s.chat = services.NewChatService(
		log, membershipRepository, index, store, readStateService, moderator,
	)
	directoryStore := directory.NewStore(db, membershipRepository, log)

	hub := transport.NewHub(
		log, s.registry, index, membershipRepository, s.buffer,
		readStateService, directoryStore, bus, s.stats,
	)
	dispatcher := transport.NewDispatcher(
		log, s.chat, readStateService, membershipRepository, searchRepository,
	)

	bus.Subscribe(event.KindMessagePosted, hub)
	bus.Subscribe(event.KindMessagePosted, sink.NewSearchSink(searchRepository, log))
	bus.Subscribe(event.KindMessagePosted, sink.NewStatsSink(s.stats))
	bus.Subscribe(event.KindUnreadCountChanged, hub)
	bus.Subscribe(event.KindPresenceChanged, hub)

	s.issuer = auth.NewTokenIssuer([]byte(tokenSecret), time.Hour)
	wsServer := transport.NewServer(
		log, hub, dispatcher, s.issuer,
		time.Duration(s.Config.HeartbeatMs)*time.Millisecond, 3,
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	sup := workers.NewSupervisor(log)
	sup.Add(bus)
	go sup.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.ServeWS)
	s.server = httptest.NewServer(mux)
}

func (s *BaseHubSuite) TearDownTest() {
	s.server.Close()
	s.cancel()
	_ = s.writer.Close()
	_ = s.db.Close()
}

// WsURL builds the endpoint for a signed token of the given identity.
func (s *BaseHubSuite) WsURL(userID, displayName string) string {
	token, err := s.issuer.Generate(userID, displayName)
	s.Require().NoError(err)
	return s.RawWsURL(token)
}

// RawWsURL builds the endpoint around a literal token string, valid or not.
func (s *BaseHubSuite) RawWsURL(token string) string {
	return strings.Replace(s.server.URL, "http", "ws", 1) + "/ws?token=" + token
}

// Connect opens an authenticated protocol client and registers its cleanup.
func (s *BaseHubSuite) Connect(userID, displayName string) *client.Client {
	c, err := client.Dial(context.Background(), s.WsURL(userID, displayName), slog.Default())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

// Step prints a colorized scenario header in the test log.
func (s *BaseHubSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// WaitOffline blocks until the hub has fully detached every connection of a
// user, so a following post is guaranteed to hit the offline path.
func (s *BaseHubSuite) WaitOffline(userID string) {
	s.Require().Eventually(func() bool {
		return !s.registry.IsOnline(userID)
	}, 2*time.Second, 10*time.Millisecond)
}
