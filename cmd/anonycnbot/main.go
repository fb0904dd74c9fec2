package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/config"
	"github.com/zetxtech/anonycnbot/internal/fanout"
	"github.com/zetxtech/anonycnbot/internal/father"
	"github.com/zetxtech/anonycnbot/internal/fleet"
	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/invite"
	"github.com/zetxtech/anonycnbot/internal/mask"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/postgres"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/redirect"
	"github.com/zetxtech/anonycnbot/internal/relay"
	"github.com/zetxtech/anonycnbot/internal/telegram"
	"github.com/zetxtech/anonycnbot/internal/user"
	"github.com/zetxtech/anonycnbot/internal/valkey"
	"github.com/zetxtech/anonycnbot/internal/voice"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("anonycnbot stopped")
	}
}

// deps holds every process-wide collaborator built once at startup and threaded into every relay (spec.md §9
// "Global configuration and caches": both config and cache are process-wide, initialized once, passed by reference).
type deps struct {
	cfg *config.Config
	db  *pgxpool.Pool
	rdb *redis.Client

	users    user.Repository
	groups   group.Repository
	members  member.Repository
	messages message.Repository
	bans     banish.Repository
	codes    invite.Repository
	redirs   redirect.Index
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.Env).Msg("starting anonycnbot")

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("postgres connected")

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("database migrations complete")

	rdb, err := valkey.Connect(ctx, redisDSN(cfg), 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("valkey connected")

	d := &deps{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		users:    user.NewPGRepository(db, log.Logger),
		groups:   group.NewPGRepository(db, log.Logger),
		members:  member.NewPGRepository(db, log.Logger),
		messages: message.NewPGRepository(db, log.Logger),
		bans:     banish.NewPGRepository(db, log.Logger),
		codes:    invite.NewPGRepository(db, log.Logger),
		redirs:   redirect.NewPGIndex(db, log.Logger),
	}

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	sup := fleet.NewSupervisor(d.groups, d.relayFactory, log.Logger)

	fatherCtrl, fatherClient, err := d.buildFather(sup)
	if err != nil {
		return fmt.Errorf("build father relay: %w", err)
	}
	go runWithBackoff(subCtx, "father-relay", func(ctx context.Context) error {
		return runFather(ctx, fatherCtrl, fatherClient)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down")
		sup.Shutdown()
		_ = fatherClient.Stop(context.Background())
		subCancel()
	}()

	if err := sup.Run(subCtx); err != nil {
		return fmt.Errorf("run fleet supervisor: %w", err)
	}
	return nil
}

// redisDSN builds a redis:// URL from the discrete host/port/db/password fields config.Config exposes, defaulting to
// localhost when REDIS_HOST is empty. A reachable Valkey/Redis server is always required; no component falls back to
// an in-process substitute.
func redisDSN(cfg *config.Config) string {
	host := cfg.RedisHost
	if host == "" {
		host = "localhost"
	}
	u := url.URL{
		Scheme: "redis",
		Host:   host + ":" + strconv.Itoa(cfg.RedisPort),
		Path:   "/" + strconv.Itoa(cfg.RedisDB),
	}
	if cfg.RedisPassword != "" {
		u.User = url.UserPassword("", cfg.RedisPassword)
	}
	return u.String()
}

// relayFactory is the fleet.RelayFactory used to build every group relay.Controller, fully wired against the
// process-wide repositories plus a fresh per-relay mask allocator/queue (spec.md §9: the mask allocator and
// user-lock table are relay-local, never shared across relays).
func (d *deps) relayFactory(ctx context.Context, token string, creatorID uuid.UUID) (*relay.Controller, error) {
	client, err := newPlatformClient(d.cfg, token)
	if err != nil {
		return nil, fmt.Errorf("build platform client for token %q: %w", token, err)
	}

	groupKey := "group." + token
	masks := mask.New(d.persistMasks(groupKey))
	fan := &fanout.Worker{
		Client:    client,
		Members:   d.members,
		Users:     d.users,
		Messages:  d.messages,
		Redirects: d.redirs,
		Voice:     voice.Noop{},
		GroupDenied: func(ctx context.Context, banType banish.Type) (bool, error) {
			g, err := d.groups.GetByToken(ctx, token)
			if err != nil {
				return false, err
			}
			bg, err := d.bans.GetByID(ctx, g.DefaultBanGroupID)
			if err != nil {
				return false, err
			}
			return bg.Denies(time.Now(), banType), nil
		},
		MemberDenied: func(ctx context.Context, m *member.Member, banType banish.Type) (bool, error) {
			if m.BanGroupID == nil {
				return false, nil
			}
			bg, err := d.bans.GetByID(ctx, *m.BanGroupID)
			if err != nil {
				return false, err
			}
			return bg.Denies(time.Now(), banType), nil
		},
	}

	return &relay.Controller{
		Token:        token,
		DB:           d.db,
		Client:       client,
		Groups:       d.groups,
		Members:      d.members,
		Users:        d.users,
		Messages:     d.messages,
		Redirects:    d.redirs,
		Bans:         d.bans,
		Invites:      d.codes,
		Masks:        masks,
		Fanout:       fan,
		Queue:        queue.New(d.rdb, token),
		GroupInvites: valkey.NewDict[invite.Code](d.rdb, groupKey+".invites"),
		Log:          log.Logger,
	}, nil
}

// maskSnapshot is the durable view persisted under "group.{token}.masks" (spec.md §4.2 CacheDict, §4.3 "save() is
// called after every mutation").
type maskSnapshot struct {
	Users map[uuid.UUID]string   `json:"users"`
	Masks map[string]mask.Holder `json:"masks"`
}

func (d *deps) persistMasks(groupKey string) func(users map[uuid.UUID]string, masks map[string]mask.Holder) error {
	key := groupKey + ".masks"
	return func(users map[uuid.UUID]string, masks map[string]mask.Holder) error {
		encoded, err := json.Marshal(maskSnapshot{Users: users, Masks: masks})
		if err != nil {
			return fmt.Errorf("marshal mask snapshot: %w", err)
		}
		if err := d.rdb.Set(context.Background(), key, encoded, 0).Err(); err != nil {
			return fmt.Errorf("save mask snapshot %s: %w", key, err)
		}
		return nil
	}
}

func (d *deps) buildFather(sup *fleet.Supervisor) (*father.Controller, telegram.Client, error) {
	client, err := newPlatformClient(d.cfg, d.cfg.FatherToken)
	if err != nil {
		return nil, nil, fmt.Errorf("build father platform client: %w", err)
	}
	ctrl := &father.Controller{
		Client:    client,
		Users:     d.users,
		Groups:    d.groups,
		Codes:     d.codes,
		Fleet:     sup,
		AwardDays: d.cfg.FatherInviteAwardDays,
		Log:       log.Logger,
	}
	return ctrl, client, nil
}

// runFather starts the father bot's platform connection and blocks until ctx is cancelled. The actual inbound
// update loop that decodes platform updates into father.Update and calls ctrl.HandleUpdate is supplied by whatever
// concrete SDK binding implements telegram.Client (see newPlatformClient); this function only owns the connection's
// lifecycle, the same split relay.Controller.Start/Stop makes for a group relay.
func runFather(ctx context.Context, ctrl *father.Controller, client telegram.Client) error {
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start father platform client: %w", err)
	}
	if err := client.SetBotCommands(ctx, []telegram.Command{
		{Name: "start", Description: "main menu"},
		{Name: "newgroup", Description: "start a relay from a bot credential"},
		{Name: "groups", Description: "list your relays"},
		{Name: "delgroup", Description: "stop and disable a relay"},
		{Name: "newcode", Description: "issue a role-granting code"},
	}); err != nil {
		log.Warn().Err(err).Msg("failed to register father bot commands")
	}
	_ = ctrl
	<-ctx.Done()
	return ctx.Err()
}

// newPlatformClient is the seam where a concrete telegram.Client binding is plugged in. internal/telegram
// deliberately ships no concrete SDK implementation (see DESIGN.md: "the concrete SDK binding is intentionally out
// of this module's scope"), so this build has nothing real to construct here; wiring a live binding means replacing
// this function with one that dials the chosen SDK using cfg and authenticates with token.
func newPlatformClient(cfg *config.Config, token string) (telegram.Client, error) {
	return nil, fmt.Errorf("no telegram.Client binding configured for this build")
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when it returns a non-nil, non-cancelled
// error. Grounded on the teacher's own background-service supervision helper (cmd/uncord/main.go).
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = 2 * time.Minute
	)
	delay := initialDelay
	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("service", name).Dur("retry_in", delay).
				Msg("background service stopped, restarting after delay")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		return
	}
}
