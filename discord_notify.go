package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	maxNoticeQueue   = 1000
	noticeSendEvery  = time.Minute / 25 // Discord-friendly send rate
	commandFetchWait = 10 * time.Second
)

// discordNotifier delivers channel notices and per-user DMs, and serves
// the slash commands. Every method is nil-receiver safe so the rest of
// the program never has to check whether Discord is configured.
type discordNotifier struct {
	dg              *discordgo.Session
	guildID         string
	notifyChannelID string
	loc             *time.Location

	subscribers *subscriberStore

	// stateFn/scheduleFn answer the /power and /schedule commands from
	// the live server state.
	stateFn    func() (powerState, time.Time, bool)
	scheduleFn func(ctx context.Context) (string, error)

	noticeMu    sync.Mutex
	noticeQueue []string
}

func newDiscordNotifier(cfg Config, subscribers *subscriberStore, loc *time.Location) *discordNotifier {
	return &discordNotifier{
		guildID:         strings.TrimSpace(cfg.DiscordServerID),
		notifyChannelID: strings.TrimSpace(cfg.DiscordNotifyChannelID),
		subscribers:     subscribers,
		loc:             loc,
	}
}

func (n *discordNotifier) Enabled() bool {
	return n != nil && n.dg != nil && n.notifyChannelID != ""
}

func (n *discordNotifier) start(ctx context.Context, botToken string) error {
	if n == nil {
		return nil
	}
	botToken = strings.TrimSpace(botToken)
	if botToken == "" || n.notifyChannelID == "" {
		logger.Info("discord notifier disabled (token or channel unset)")
		return nil
	}

	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)

	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		n.handleCommand(s, i)
	})

	if err := dg.Open(); err != nil {
		return err
	}
	n.dg = dg

	if err := n.registerCommands(); err != nil {
		logger.Warn("discord command registration failed", "error", err)
	}

	go n.noticeLoop(ctx)
	logger.Info("discord notifier started", "guild_id", n.guildID)
	return nil
}

func (n *discordNotifier) close() {
	if n == nil || n.dg == nil {
		return
	}
	_ = n.dg.Close()
}

func (n *discordNotifier) registerCommands() error {
	if n == nil || n.dg == nil {
		return nil
	}
	appID := ""
	if n.dg.State != nil && n.dg.State.User != nil {
		appID = n.dg.State.User.ID
	}
	if appID == "" || n.guildID == "" {
		return fmt.Errorf("missing appID or guildID")
	}

	cmds := []*discordgo.ApplicationCommand{
		{Name: "power", Description: "Show the current power state and how long it has held"},
		{Name: "schedule", Description: "Show today's outage schedule"},
		{Name: "notify", Description: "DM me when the power state changes"},
		{Name: "mute", Description: "Stop DMing me about power changes"},
	}

	_, err := n.dg.ApplicationCommandBulkOverwrite(appID, n.guildID, cmds)
	return err
}

func (n *discordNotifier) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	userID := ""
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}

	switch data.Name {
	case "power":
		if n.stateFn == nil {
			_ = respondEphemeral(s, i, "Power state is not tracked on this server.")
			return
		}
		state, changedAt, known := n.stateFn()
		_ = respondEphemeral(s, i, formatPowerStatusMessage(state, changedAt, known, n.loc))

	case "schedule":
		if n.scheduleFn == nil {
			_ = respondEphemeral(s, i, "Schedule monitoring is not enabled on this server.")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandFetchWait)
		defer cancel()
		msg, err := n.scheduleFn(ctx)
		if err != nil {
			logger.Warn("schedule command fetch failed", "error", err)
			_ = respondEphemeral(s, i, "Schedule is unavailable right now, try again later.")
			return
		}
		_ = respondEphemeral(s, i, msg)

	case "notify":
		if userID == "" {
			_ = respondEphemeral(s, i, "Could not determine your user ID.")
			return
		}
		if err := n.subscribers.Add(userID); err != nil {
			logger.Warn("subscriber add failed", "user_id", userID, "error", err)
			_ = respondEphemeral(s, i, "Failed to enable notifications (server error).")
			return
		}
		_ = respondEphemeral(s, i, "Enabled. You'll get a DM whenever the power state changes. Run `/mute` to turn this off.")

	case "mute":
		if userID == "" {
			_ = respondEphemeral(s, i, "Could not determine your user ID.")
			return
		}
		if err := n.subscribers.Remove(userID); err != nil {
			logger.Warn("subscriber remove failed", "user_id", userID, "error", err)
			_ = respondEphemeral(s, i, "Failed to disable notifications (server error).")
			return
		}
		_ = respondEphemeral(s, i, "Disabled.")
	}
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// Announce queues a notice for the configured channel. Fire-and-forget:
// the caller never learns about delivery failures, they are logged by
// the send loop.
func (n *discordNotifier) Announce(msg string) {
	if n == nil || strings.TrimSpace(msg) == "" {
		return
	}
	n.noticeMu.Lock()
	defer n.noticeMu.Unlock()
	if len(n.noticeQueue) >= maxNoticeQueue {
		// Drop oldest to keep memory bounded.
		n.noticeQueue = n.noticeQueue[1:]
	}
	n.noticeQueue = append(n.noticeQueue, msg)
}

// NotifyPowerChange posts the transition to the channel and DMs every
// subscriber. Called strictly after the state was persisted.
func (n *discordNotifier) NotifyPowerChange(rep statusReport) {
	if n == nil {
		return
	}
	msg := formatPowerChangeMessage(rep, n.loc)
	n.Announce(msg)

	ids, err := n.subscribers.List()
	if err != nil {
		logger.Warn("list subscribers failed", "error", err)
		return
	}
	for _, id := range ids {
		go n.sendDM(id, msg)
	}
}

func (n *discordNotifier) sendDM(userID, msg string) {
	if n == nil || n.dg == nil {
		return
	}
	ch, err := n.dg.UserChannelCreate(userID)
	if err != nil {
		logger.Warn("open DM channel failed", "user_id", userID, "error", err)
		metrics.notificationsFailed.Add(1)
		return
	}
	if _, err := n.dg.ChannelMessageSend(ch.ID, msg); err != nil {
		logger.Warn("send DM failed", "user_id", userID, "error", err)
		metrics.notificationsFailed.Add(1)
		return
	}
	metrics.notificationsSent.Add(1)
}

func (n *discordNotifier) noticeLoop(ctx context.Context) {
	ticker := time.NewTicker(noticeSendEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sendNextNotice()
		}
	}
}

func (n *discordNotifier) sendNextNotice() {
	if n == nil || n.dg == nil {
		return
	}

	n.noticeMu.Lock()
	if len(n.noticeQueue) == 0 {
		n.noticeMu.Unlock()
		return
	}
	msg := n.noticeQueue[0]
	n.noticeMu.Unlock()

	_, err := n.dg.ChannelMessageSendComplex(n.notifyChannelID, &discordgo.MessageSend{
		Content:         msg,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		logger.Warn("discord notice send failed, dropping notice", "error", err)
		metrics.notificationsFailed.Add(1)
	} else {
		metrics.notificationsSent.Add(1)
	}

	// Dequeue regardless of outcome: deliveries are fire-and-forget and
	// a failed notice is never retried.
	n.noticeMu.Lock()
	if len(n.noticeQueue) > 0 {
		n.noticeQueue = n.noticeQueue[1:]
	}
	n.noticeMu.Unlock()
}
