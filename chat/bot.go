package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/lap-trend/backend/chart"
	"github.com/onnwee/lap-trend/backend/db"
	"github.com/onnwee/lap-trend/backend/iracing"
	"github.com/onnwee/lap-trend/backend/telemetry"
	"github.com/onnwee/lap-trend/backend/timeutil"
	"github.com/onnwee/lap-trend/backend/trend"
)

// Platform is the linked_users platform value for Twitch accounts.
const Platform = "twitch"

// DefaultCooldown is the per-user wait between !trend requests.
const DefaultCooldown = 30 * time.Second

// TrendBuilder builds a driver's chart.
type TrendBuilder interface {
	Build(ctx context.Context, req trend.Request) (*trend.Result, error)
}

// LinkStore keeps chat account links.
type LinkStore interface {
	LinkedDriver(ctx context.Context, platform, username string) (db.LinkedDriver, error)
	LinkUser(ctx context.Context, platform, username string, custID int64, displayName string) error
	UnlinkUser(ctx context.Context, platform, username string) error
}

// MemberLookup resolves a customer id to a display name.
type MemberLookup interface {
	MemberName(ctx context.Context, custID int64) (string, error)
}

// ChartPublisher stores a chart and returns a URL where it can be viewed.
type ChartPublisher interface {
	Publish(c *chart.Chart) string
}

// HistorySyncer pulls a driver's recent races right after linking.
type HistorySyncer interface {
	SyncDriver(ctx context.Context, custID int64) (int, error)
}

// Bot answers chat commands. Members and Syncer are optional.
type Bot struct {
	Engine   TrendBuilder
	Links    LinkStore
	Charts   ChartPublisher
	Members  MemberLookup
	Syncer   HistorySyncer
	Cooldown time.Duration
	Clock    timeutil.Clock

	mu       sync.Mutex
	lastCall map[string]time.Time
}

func (b *Bot) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock.Now()
}

// Handle runs the command in msg from user and returns the reply. ok is false
// when msg is not a command.
func (b *Bot) Handle(ctx context.Context, user, msg string) (reply string, ok bool) {
	cmd, ok := ParseCommand(msg)
	if !ok {
		return "", false
	}
	telemetry.IncLabel(telemetry.ChatCommands, cmd.Name)
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("command", cmd.Name),
		slog.String("user", user),
		slog.String("component", "chat_bot"))

	switch cmd.Name {
	case "trend":
		return b.handleTrend(ctx, log, user, cmd.Args), true
	case "link":
		return b.handleLink(ctx, log, user, cmd.Args), true
	case "unlink":
		return b.handleUnlink(ctx, log, user), true
	}
	return "", false
}

func (b *Bot) handleTrend(ctx context.Context, log *slog.Logger, user string, args []string) string {
	if wait := b.cooldownLeft(user); wait > 0 {
		return fmt.Sprintf("slow down! try again in %ds", int(wait.Round(time.Second)/time.Second))
	}
	driver, err := b.Links.LinkedDriver(ctx, Platform, user)
	if errors.Is(err, db.ErrNotLinked) {
		return "you're not linked yet, use !link <iRacing customer id>"
	}
	if err != nil {
		log.Error("linked driver lookup failed", slog.Any("err", err))
		return "something went wrong, try again later"
	}

	rng := ""
	if len(args) > 0 {
		rng = args[0]
	}
	name := driver.DisplayName
	if name == "" {
		name = user
	}
	res, err := b.Engine.Build(ctx, trend.Request{CustID: driver.CustID, DisplayName: name, Range: rng})
	if errors.Is(err, iracing.ErrUnavailable) {
		return "iRacing is unavailable right now, try again later"
	}
	if err != nil {
		log.Error("trend build failed", slog.Int64("cust_id", driver.CustID), slog.Any("err", err))
		return "couldn't build your chart, try again later"
	}
	b.markCalled(user)

	s := res.Summary
	if s.PointCount == 0 {
		return fmt.Sprintf("no races with a known record in %s", strings.ToLower(s.RangeLabel))
	}
	url := b.Charts.Publish(res.Chart)
	latest := res.Trend[len(res.Trend)-1].Value
	return fmt.Sprintf("%s: %d %s on %d %s, trend now %+.1f%% off record %s",
		s.RangeLabel, s.PointCount, plural(s.PointCount, "race", "races"),
		s.ComboCount, plural(s.ComboCount, "combo", "combos"), latest, url)
}

func (b *Bot) handleLink(ctx context.Context, log *slog.Logger, user string, args []string) string {
	if len(args) != 1 {
		return "usage: !link <iRacing customer id>"
	}
	custID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || custID <= 0 {
		return "usage: !link <iRacing customer id>"
	}

	display := ""
	if b.Members != nil {
		display, err = b.Members.MemberName(ctx, custID)
		switch {
		case errors.Is(err, iracing.ErrMemberNotFound):
			return fmt.Sprintf("no iRacing member with id %d", custID)
		case errors.Is(err, iracing.ErrUnavailable):
			return "iRacing is unavailable right now, try again later"
		case err != nil:
			log.Warn("member lookup failed; linking without a name", slog.Int64("cust_id", custID), slog.Any("err", err))
			display = ""
		}
	}
	if err := b.Links.LinkUser(ctx, Platform, user, custID, display); err != nil {
		log.Error("link failed", slog.Int64("cust_id", custID), slog.Any("err", err))
		return "something went wrong, try again later"
	}
	log.Info("user linked", slog.Int64("cust_id", custID))

	if b.Syncer != nil {
		if n, err := b.Syncer.SyncDriver(ctx, custID); err != nil {
			log.Warn("initial history sync failed", slog.Int64("cust_id", custID), slog.Any("err", err))
		} else {
			log.Info("initial history sync", slog.Int64("cust_id", custID), slog.Int("races", n))
		}
	}
	if display != "" {
		return fmt.Sprintf("linked to %s (%d), try !trend", display, custID)
	}
	return fmt.Sprintf("linked to %d, try !trend", custID)
}

func (b *Bot) handleUnlink(ctx context.Context, log *slog.Logger, user string) string {
	err := b.Links.UnlinkUser(ctx, Platform, user)
	if errors.Is(err, db.ErrNotLinked) {
		return "you weren't linked"
	}
	if err != nil {
		log.Error("unlink failed", slog.Any("err", err))
		return "something went wrong, try again later"
	}
	return "unlinked"
}

func (b *Bot) cooldown() time.Duration {
	if b.Cooldown <= 0 {
		return DefaultCooldown
	}
	return b.Cooldown
}

func (b *Bot) cooldownLeft(user string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, ok := b.lastCall[strings.ToLower(user)]
	if !ok {
		return 0
	}
	return b.cooldown() - b.now().Sub(last)
}

func (b *Bot) markCalled(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastCall == nil {
		b.lastCall = make(map[string]time.Time)
	}
	b.lastCall[strings.ToLower(user)] = b.now()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Run connects to Twitch IRC, joins channels and answers commands until ctx
// is cancelled.
func (b *Bot) Run(ctx context.Context, username, oauthToken string, channels []string) error {
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	client := twitch.NewClient(username, oauthToken)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if _, ok := ParseCommand(msg.Message); !ok {
			return
		}
		// builds can take seconds; keep the reader loop free
		go func() {
			reqCtx := telemetry.WithCorrelation(ctx, msg.ID)
			reply, ok := b.Handle(reqCtx, msg.User.Name, msg.Message)
			if ok {
				client.Reply(msg.Channel, msg.ID, reply)
			}
		}()
	})
	client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.Any("channels", channels), slog.String("component", "chat_bot"))
	})

	go func() {
		<-ctx.Done()
		_ = client.Disconnect() //nolint:errcheck // shutting down
	}()

	client.Join(channels...)
	err := client.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}
