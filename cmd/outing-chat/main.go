package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tarantool/go-tarantool/v2"
	_ "github.com/tarantool/go-tarantool/v2/datetime"
	_ "github.com/tarantool/go-tarantool/v2/decimal"
	_ "github.com/tarantool/go-tarantool/v2/uuid"

	"github.com/Xausdorf/outing-chat/internal/config"
	"github.com/Xausdorf/outing-chat/internal/domain"
	"github.com/Xausdorf/outing-chat/internal/feed"
	"github.com/Xausdorf/outing-chat/internal/gateway/console"
	"github.com/Xausdorf/outing-chat/internal/repository/memory"
	"github.com/Xausdorf/outing-chat/internal/repository/redisread"
	"github.com/Xausdorf/outing-chat/internal/repository/ttadapter"
	"github.com/Xausdorf/outing-chat/internal/usecase"
)

const (
	demoSessionID = "demo"
	demoViewerID  = "bob"
)

type repositories struct {
	sessions usecase.SessionRepository
	users    usecase.UserRepository
	messages usecase.MessageRepository
	markers  usecase.ReadMarkerRepository
	polls    usecase.PollRepository
	votes    usecase.VoteRepository
	close    func()
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.InitLog()

	ctx, stop := setupGracefulShutdown()
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("could not open storage")
	}
	defer repos.close()

	access := usecase.NewAccess(repos.sessions, repos.users, repos.polls)
	messages := usecase.NewMessages(access, repos.messages, repos.polls, repos.markers)
	polls := usecase.NewPolls(access, repos.polls, repos.votes, repos.users)

	sessionID, viewerID := cfg.SessionID, cfg.ViewerID
	if cfg.Demo {
		if sessionID == "" {
			sessionID = demoSessionID
		}
		if viewerID == "" {
			viewerID = demoViewerID
		}
	}
	session, err := repos.sessions.GetByID(ctx, sessionID)
	if err != nil {
		log.WithError(err).WithField("session", sessionID).Fatal("could not load the outing")
	}
	viewer, err := repos.users.GetByID(ctx, viewerID)
	if err != nil {
		log.WithError(err).WithField("viewer", viewerID).Fatal("could not load the viewer")
	}

	out := console.New(os.Stdout, console.Mode(cfg.Output))
	controller, err := feed.NewController(feed.Config{
		Interval:     cfg.Feed.Interval,
		StoreTimeout: cfg.Feed.StoreTimeout,
		Workers:      cfg.Feed.Workers,
		Queue:        cfg.Feed.Queue,
	}, *session, *viewer, messages, polls, access, out)
	if err != nil {
		log.WithError(err).Fatal("could not create the feed")
	}
	out.Attach(controller)

	if err = controller.Start(ctx); err != nil {
		log.WithError(err).Fatal("could not start the feed")
	}
	defer controller.Stop()

	if err = out.Listen(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("console stopped")
	}
	log.Info("Shutting down")
}

func setupGracefulShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Demo {
		db := memory.New()
		if err := seedDemo(ctx, db); err != nil {
			return nil, fmt.Errorf("could not seed demo data: %w", err)
		}
		repos := &repositories{
			sessions: db.Sessions(),
			users:    db.Users(),
			messages: db.Messages(),
			markers:  db.Markers(),
			polls:    db.Polls(),
			votes:    db.Votes(),
			close:    func() {},
		}
		if err := useRedisMarkers(cfg, repos); err != nil {
			return nil, err
		}
		return repos, nil
	}

	conn, err := connectTarantool(ctx, cfg.Tarantool)
	if err != nil {
		return nil, fmt.Errorf("connection to tarantool refused: %w", err)
	}
	log.WithField("address", cfg.Tarantool.Address).Info("Succesfully connected to tarantool")

	repos := &repositories{
		sessions: ttadapter.NewSessionRepository(conn),
		users:    ttadapter.NewUserRepository(conn),
		messages: ttadapter.NewMessageRepository(conn),
		markers:  ttadapter.NewMarkerRepository(conn),
		polls:    ttadapter.NewPollRepository(conn),
		votes:    ttadapter.NewVoteRepository(conn),
		close: func() {
			if err := conn.Close(); err != nil {
				log.WithError(err).Warn("could not close tarantool connection")
			}
		},
	}
	if err = useRedisMarkers(cfg, repos); err != nil {
		repos.close()
		return nil, err
	}
	return repos, nil
}

func useRedisMarkers(cfg *config.Config, repos *repositories) error {
	if cfg.RedisURI == "" {
		return nil
	}
	client, err := redisread.Connect(cfg.RedisURI)
	if err != nil {
		return fmt.Errorf("could not connect to redis: %w", err)
	}
	markers, err := redisread.NewMarkerRepository(client)
	if err != nil {
		return err
	}
	repos.markers = markers
	closeStore := repos.close
	repos.close = func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("could not close redis client")
		}
		closeStore()
	}
	log.Info("read markers are stored in redis")
	return nil
}

func connectTarantool(ctx context.Context, cfg config.TarantoolCfg) (*tarantool.Connection, error) {
	dialer := tarantool.NetDialer{
		Address:  cfg.Address,
		User:     cfg.User,
		Password: cfg.Password,
	}
	opts := tarantool.Opts{
		Timeout:       cfg.Timeout,
		Reconnect:     cfg.Reconnect,
		MaxReconnects: cfg.MaxReconnects,
	}

	return tarantool.Connect(ctx, dialer, opts)
}

// seedDemo fills the in-memory store with one outing, three people and a short chat.
func seedDemo(ctx context.Context, db *memory.DB) error {
	db.PutUser(domain.User{ID: "alice", Role: domain.RoleMember, DisplayName: "Alice"})
	db.PutUser(domain.User{ID: "bob", Role: domain.RoleMember, DisplayName: "Bob"})
	db.PutUser(domain.User{ID: "carol", Role: domain.RoleMember, DisplayName: "Carol"})
	db.PutUser(domain.User{ID: "root", Role: domain.RoleAdmin, DisplayName: "Moderator"})
	db.PutSession(domain.Session{ID: demoSessionID, OwnerUserID: "alice", Title: "Picnic on Sunday"})
	db.PutParticipation(domain.Participation{SessionID: demoSessionID, UserID: "bob", Status: domain.ParticipationAccepted})
	db.PutParticipation(domain.Participation{SessionID: demoSessionID, UserID: "carol", Status: domain.ParticipationPending})

	access := usecase.NewAccess(db.Sessions(), db.Users(), db.Polls())
	messages := usecase.NewMessages(access, db.Messages(), db.Polls(), db.Markers())
	polls := usecase.NewPolls(access, db.Polls(), db.Votes(), db.Users())

	if _, err := messages.Append(ctx, demoSessionID, "alice", "Hi everyone, Sunday at noon?"); err != nil {
		return err
	}
	draft := domain.PollDraft{Question: "Lieu?", Pinned: true, Options: []string{"Cafe", "Parc"}}
	msg, err := polls.StartPoll(ctx, demoSessionID, "alice", draft)
	if err != nil {
		return err
	}
	snapshot, err := polls.GetSnapshot(ctx, msg.PollID, "alice")
	if err != nil {
		return err
	}
	return polls.Vote(ctx, msg.PollID, "alice", false, []string{snapshot.Options[0].ID})
}
