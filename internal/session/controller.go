package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/archivist/internal/channel"
	"github.com/memohai/archivist/internal/media"
	"github.com/memohai/archivist/internal/pipeline"
)

// Messenger talks back to users and fetches attachment bytes.
// *channel.Registry satisfies it.
type Messenger interface {
	Reply(ctx context.Context, msg channel.InboundMessage, text string) error
	Push(ctx context.Context, channelType channel.ChannelType, target, text string) error
	ResolveAttachment(ctx context.Context, msg channel.InboundMessage, attachment channel.Attachment) (channel.AttachmentPayload, error)
}

// Spooler stores attachment bytes locally. *media.Spooler satisfies it.
type Spooler interface {
	Spool(input media.SpoolInput) (media.LocalFile, error)
	Remove(path string) error
}

// Pipeline processes a finished batch.
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Report, error)
}

// Controller drives the per-user state machine. It expects messages for one
// user to arrive sequentially, which channel.Dispatcher guarantees.
type Controller struct {
	store     Store
	messenger Messenger
	spooler   Spooler
	pipeline  Pipeline
	logger    *slog.Logger
	now       func() time.Time
}

// NewController creates a controller.
func NewController(log *slog.Logger, store Store, messenger Messenger, spooler Spooler, p Pipeline) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:     store,
		messenger: messenger,
		spooler:   spooler,
		pipeline:  p,
		logger:    log.With(slog.String("service", "session")),
		now:       time.Now,
	}
}

// State reports the current state for a user key.
func (c *Controller) State(key string) State {
	if _, ok := c.store.Get(key); ok {
		return StateRecording
	}
	return StateIdle
}

// HandleInbound applies one inbound message. It satisfies
// channel.InboundHandler.
func (c *Controller) HandleInbound(ctx context.Context, msg channel.InboundMessage) error {
	if msg.IsEmpty() {
		c.logger.Debug("ignoring empty message", slog.String("channel", msg.Channel.String()))
		return nil
	}
	key := msg.UserKey()
	cmd := ParseCommand(msg.Text)
	state := c.State(key)
	tr, err := Next(state, cmd.Input)
	if err != nil {
		return err
	}
	log := c.logger.With(
		slog.String("user", key),
		slog.String("state", state.String()),
		slog.String("input", cmd.Input.String()),
		slog.String("kind", string(msg.Kind())),
	)
	log.Debug("transition", slog.String("next", tr.Next.String()))

	switch tr.Action {
	case ActionOpen, ActionReopen:
		return c.open(ctx, log, msg, cmd.Label)
	case ActionBuffer:
		return c.buffer(ctx, log, key, msg)
	case ActionFinish:
		return c.finish(ctx, log, key, msg)
	case ActionDiscard:
		c.discard(log, msg)
		return c.messenger.Reply(ctx, msg, msgIdle)
	case ActionRemind:
		return c.messenger.Reply(ctx, msg, msgNotStarted)
	}
	return fmt.Errorf("unhandled action %d", tr.Action)
}

func (c *Controller) open(ctx context.Context, log *slog.Logger, msg channel.InboundMessage, label string) error {
	now := c.now()
	prev, replaced := c.store.Start(Session{
		Key:          msg.UserKey(),
		Channel:      msg.Channel,
		UserID:       msg.Sender.SubjectID,
		ReplyTarget:  msg.ReplyTarget,
		ContextLabel: label,
		StartedAt:    now,
		UpdatedAt:    now,
	})
	ack := startAck(label)
	if replaced {
		c.purge(log, prev.AttachmentPaths)
		log.Info("session replaced",
			slog.String("previous_label", prev.ContextLabel),
			slog.Int("dropped_texts", len(prev.Texts)),
			slog.Int("dropped_files", len(prev.AttachmentPaths)),
		)
		ack = restartAck(prev.ContextLabel, label)
	}
	log.Info("session started", slog.String("label", label))
	return c.messenger.Reply(ctx, msg, ack)
}

func (c *Controller) buffer(ctx context.Context, log *slog.Logger, key string, msg channel.InboundMessage) error {
	var texts []string
	if text := strings.TrimSpace(msg.Text); text != "" {
		texts = append(texts, msg.Text)
	}
	var paths []string
	for _, att := range msg.Attachments {
		path, err := c.fetch(ctx, msg, att)
		if err != nil {
			log.Error("attachment fetch failed", slog.String("key", att.PlatformKey), slog.Any("error", err))
			continue
		}
		paths = append(paths, path)
	}
	if !c.store.Append(key, texts, paths, c.now()) {
		c.purge(log, paths)
		return fmt.Errorf("session %s vanished while buffering", key)
	}
	log.Debug("buffered", slog.Int("texts", len(texts)), slog.Int("files", len(paths)))
	return nil
}

func (c *Controller) fetch(ctx context.Context, msg channel.InboundMessage, att channel.Attachment) (string, error) {
	if strings.TrimSpace(att.LocalPath) != "" {
		return att.LocalPath, nil
	}
	payload, err := c.messenger.ResolveAttachment(ctx, msg, att)
	if err != nil {
		return "", err
	}
	defer func() { _ = payload.Reader.Close() }()

	name := att.Name
	if name == "" {
		name = payload.Name
	}
	mime := att.Mime
	if mime == "" {
		mime = payload.Mime
	}
	mediaType := media.MediaTypeFile
	if att.Type == channel.AttachmentImage {
		mediaType = media.MediaTypeImage
	}
	file, err := c.spooler.Spool(media.SpoolInput{
		MediaType:    mediaType,
		OriginalName: name,
		Mime:         mime,
		Reader:       payload.Reader,
	})
	if err != nil {
		return "", fmt.Errorf("spool attachment: %w", err)
	}
	return file.Path, nil
}

func (c *Controller) finish(ctx context.Context, log *slog.Logger, key string, msg channel.InboundMessage) error {
	sess, ok := c.store.Pop(key)
	if !ok {
		return c.messenger.Reply(ctx, msg, msgNotStarted)
	}
	if err := c.messenger.Reply(ctx, msg, msgProcessing); err != nil {
		log.Warn("processing ack failed", slog.Any("error", err))
	}

	// The pipeline runs to completion even if the caller goes away.
	runCtx := context.WithoutCancel(ctx)
	target := sess.ReplyTarget
	if target == "" {
		target = msg.ReplyTarget
	}
	report, err := c.pipeline.Run(runCtx, pipeline.Input{
		Label:           sess.ContextLabel,
		Texts:           sess.Texts,
		AttachmentPaths: sess.AttachmentPaths,
	})
	if err != nil {
		log.Error("pipeline failed", slog.String("label", sess.ContextLabel), slog.Any("error", err))
		return c.messenger.Push(runCtx, sess.Channel, target, msgFailure)
	}
	return c.messenger.Push(runCtx, sess.Channel, target, completion(report))
}

// discard deletes files that were already downloaded for content received
// while idle.
func (c *Controller) discard(log *slog.Logger, msg channel.InboundMessage) {
	var paths []string
	for _, att := range msg.Attachments {
		if att.LocalPath != "" {
			paths = append(paths, att.LocalPath)
		}
	}
	c.purge(log, paths)
	log.Info("content discarded while idle", slog.Int("attachments", len(msg.Attachments)))
}

func (c *Controller) purge(log *slog.Logger, paths []string) {
	for _, p := range paths {
		if err := c.spooler.Remove(p); err != nil {
			log.Warn("remove temp file failed", slog.String("path", p), slog.Any("error", err))
		}
	}
}
