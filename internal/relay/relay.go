// Package relay implements the per-group relay controller (spec.md §4.8, C8): one Controller owns one hosted bot
// credential's lifecycle, inbound dispatch, and conversation state.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zetxtech/anonycnbot/internal/banish"
	"github.com/zetxtech/anonycnbot/internal/bootstrap"
	"github.com/zetxtech/anonycnbot/internal/fanout"
	"github.com/zetxtech/anonycnbot/internal/group"
	"github.com/zetxtech/anonycnbot/internal/invite"
	"github.com/zetxtech/anonycnbot/internal/mask"
	"github.com/zetxtech/anonycnbot/internal/member"
	"github.com/zetxtech/anonycnbot/internal/message"
	"github.com/zetxtech/anonycnbot/internal/queue"
	"github.com/zetxtech/anonycnbot/internal/redirect"
	"github.com/zetxtech/anonycnbot/internal/telegram"
	"github.com/zetxtech/anonycnbot/internal/user"
	"github.com/zetxtech/anonycnbot/internal/valkey"
)

// pollQuantum is the poll interval for a send's "sending…" completion wait (spec.md §4.8 step 8).
const pollQuantum = time.Second

// registeredCommands is the fixed command set every relay registers with the platform (spec.md §4.8 step 2).
var registeredCommands = []telegram.Command{
	{Name: "start", Description: "join or restart the relay"},
	{Name: "delete", Description: "delete the message you reply to"},
	{Name: "change", Description: "edit the message you reply to"},
	{Name: "setmask", Description: "claim a specific mask"},
	{Name: "ban", Description: "ban a member"},
	{Name: "unban", Description: "lift a member's ban"},
	{Name: "pin", Description: "pin a message"},
	{Name: "unpin", Description: "unpin a message"},
	{Name: "reveal", Description: "reveal a mask's owner"},
	{Name: "manage", Description: "open the admin menu"},
	{Name: "pm", Description: "reply privately to a member"},
	{Name: "invite", Description: "create a per-group invite code"},
}

// Controller owns one relay's lifecycle and inbound dispatch.
type Controller struct {
	Token string
	DB    *pgxpool.Pool

	Client    telegram.Client
	Groups    group.Repository
	Members   member.Repository
	Users     user.Repository
	Messages  message.Repository
	Redirects redirect.Index
	Bans      banish.Repository
	Invites   invite.Repository
	Masks     *mask.Allocator
	Fanout    *fanout.Worker
	Queue     *valkey.Queue[queue.Op, queue.View]
	// GroupInvites backs the per-group invite codes of spec.md §4.10 "Invite codes (per-group)": cache-resident,
	// keyed by code, carrying the inviting Member and remaining-use count.
	GroupInvites *valkey.Dict[invite.Code]

	Conversations *ConversationTable
	Locks         *UserLockTable

	Log zerolog.Logger
	Now func() time.Time

	group *group.Group

	cancel context.CancelFunc
	booted chan struct{}
	failed chan error
}

// Booted returns a channel closed once Start completes successfully.
func (c *Controller) Booted() <-chan struct{} { return c.booted }

// Failed returns a channel that receives the first fatal error observed after boot, if any.
func (c *Controller) Failed() <-chan error { return c.failed }

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Start implements spec.md §4.8 "Start": open the SDK connection, register handlers, bootstrap the Group row on
// first run, bind the logger, fire booted, and start the fan-out worker loop. Start returns once the relay is
// running or has definitively failed to start; it does not block for the relay's lifetime (use Failed to observe
// later faults).
func (c *Controller) Start(ctx context.Context) error {
	c.booted = make(chan struct{})
	c.failed = make(chan error, 1)
	if c.Conversations == nil {
		c.Conversations = NewConversationTable()
	}
	if c.Locks == nil {
		c.Locks = NewUserLockTable()
	}

	if err := c.Client.Start(ctx); err != nil {
		existing, getErr := c.Groups.GetByToken(ctx, c.Token)
		if telegram.IsCredentialDeactivated(err) && getErr == nil {
			disabled := true
			_, updateErr := c.Groups.Update(ctx, existing.ID, group.UpdateParams{Disabled: &disabled})
			return updateErr
		}
		return fmt.Errorf("start platform client: %w", err)
	}

	if err := c.Client.SetBotCommands(ctx, registeredCommands); err != nil {
		c.Log.Warn().Err(err).Msg("failed to register bot commands")
	}

	if c.group == nil {
		g, err := c.Groups.GetByToken(ctx, c.Token)
		if err != nil {
			if errors.Is(err, group.ErrNotFound) {
				return fmt.Errorf("no group row for token %q: call BootstrapWithCreator first", c.Token)
			}
			return fmt.Errorf("look up group by token: %w", err)
		}
		c.group = g
	}
	g := c.group

	c.Log = c.Log.With().Str("group", g.ID.String()).Str("token", c.Token).Logger()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)

	close(c.booted)
	return nil
}

// BootstrapWithCreator performs the first-run Group creation for a token with a known creator User, then starts the
// relay normally. Use this instead of Start when the father service is spawning a brand-new relay.
func (c *Controller) BootstrapWithCreator(ctx context.Context, creatorID uuid.UUID, invitorID *uuid.UUID, title string) error {
	res, err := bootstrap.CreateGroup(ctx, c.DB, bootstrap.GroupParams{
		Token:     c.Token,
		Title:     title,
		CreatorID: creatorID,
	})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	if err := bootstrap.GrantCreatorRoles(ctx, c.Users, creatorID, invitorID); err != nil {
		c.Log.Warn().Err(err).Msg("failed to grant creator roles")
	}
	c.group = res.Group
	return c.Start(ctx)
}

// run is the relay's main worker loop: one cooperative consumer draining the operation queue in order (spec.md
// §4.7 "Scheduling").
func (c *Controller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		op, ok, err := c.Queue.Get(ctx)
		if err != nil {
			c.fail(fmt.Errorf("dequeue operation: %w", err))
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		c.dispatch(ctx, op)
	}
}

// dispatch executes one dequeued op against the fan-out worker (spec.md §4.6, §4.7). Bulk ops are off-loaded to a
// detached goroutine so they never block the main consumer.
func (c *Controller) dispatch(ctx context.Context, op queue.Op) {
	switch op.Kind {
	case queue.KindBroadcast:
		c.Fanout.Broadcast(ctx, c.group.ID, op)
	case queue.KindEdit:
		c.Fanout.Edit(ctx, c.group.ID, op)
	case queue.KindDelete:
		c.Fanout.Delete(ctx, op)
	case queue.KindPin:
		c.Fanout.Pin(ctx, c.group.ID, op)
	case queue.KindUnpin:
		c.Fanout.Unpin(ctx, c.group.ID, op)
	case queue.KindBulkRedirect:
		go c.Fanout.BulkRedirect(context.WithoutCancel(ctx), op)
	case queue.KindBulkPin:
		go c.Fanout.BulkPin(context.WithoutCancel(ctx), op)
	}
}

func (c *Controller) fail(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

// Stop implements spec.md §4.8 "Stop": cancel the relay's tasks and close the SDK connection. Persisting a fresher
// handle/title is left to whatever out-of-band sync keeps Group.Handle/Title current; the abstracted Client surface
// (spec.md §6) has no "describe myself" operation to source a fresher value from on the way down.
func (c *Controller) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		_ = c.Groups.Touch(ctx, c.group.ID)
	}
	if err := c.Client.Stop(ctx); err != nil {
		return fmt.Errorf("stop platform client: %w", err)
	}
	return nil
}
