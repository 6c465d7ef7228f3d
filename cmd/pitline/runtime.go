package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/agent"
	"github.com/pitline/pitline/internal/appconfig"
	"github.com/pitline/pitline/internal/command"
	"github.com/pitline/pitline/internal/envfile"
	"github.com/pitline/pitline/internal/llm"
	"github.com/pitline/pitline/internal/logx"
	"github.com/pitline/pitline/internal/persist"
	"github.com/pitline/pitline/internal/store"
	"github.com/pitline/pitline/internal/usage"
	"github.com/pitline/pitline/internal/venue"
	"github.com/pitline/pitline/schema"
)

// appRuntime bundles the long-lived collaborators every session shares:
// config, secrets, the venue client, the model client and the stores.
type appRuntime struct {
	cfg       appconfig.Config
	env       *envfile.File
	venue     venue.Venue
	model     *llm.Client
	db        *store.Store
	snapshots *persist.Store
	meter     *usage.Meter
	logger    pslog.Logger
}

func buildRuntime(ctx context.Context, cfgPath string) (*appRuntime, error) {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	env, err := envfile.Load(cfg.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", cfg.EnvFile, err)
	}

	apiKey, _ := env.Get(cfg.Model.APIKeyEnv)
	model, err := llm.New(llm.Config{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Model.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("model client: %w (set %s in %s)", err, cfg.Model.APIKeyEnv, cfg.EnvFile)
	}

	v, err := buildVenue(cfg, env)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	db, err := store.Open(filepath.Join(cfg.StateDir, "pitline.db"))
	if err != nil {
		return nil, err
	}
	snapshots, err := persist.NewStoreWithLogger(filepath.Join(cfg.StateDir, "sessions"), logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("runtime ready",
		"venue", v.Name(), "venue_label", cfg.Venue.Label,
		"model", cfg.Model.Name, "state_dir", cfg.StateDir)
	return &appRuntime{
		cfg:       cfg,
		env:       env,
		venue:     v,
		model:     model,
		db:        db,
		snapshots: snapshots,
		meter:     usage.NewMeter(),
		logger:    logger,
	}, nil
}

func buildVenue(cfg appconfig.Config, env *envfile.File) (venue.Venue, error) {
	switch cfg.Venue.Kind {
	case "sim", "":
		return venue.NewSim(), nil
	case "http":
		key, ok := env.Get(cfg.Venue.APIKeyEnv)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("venue api key missing: set %s in %s", cfg.Venue.APIKeyEnv, cfg.EnvFile)
		}
		return venue.NewHTTPVenue(cfg.Venue.BaseURL, key), nil
	default:
		return nil, fmt.Errorf("unsupported venue.kind %q", cfg.Venue.Kind)
	}
}

func (rt *appRuntime) Close() error {
	if rt == nil || rt.db == nil {
		return nil
	}
	return rt.db.Close()
}

// sessionConfig fills the non-transport half of a console.Config for
// one user: copilot, command handler, theme and persistence wiring.
// Callers add Output, Chunks, Resize and Events.
func (rt *appRuntime) sessionConfig(ctx context.Context, userID schema.UserID) console.Config {
	copilot := &persistingCopilot{
		inner: agent.New(rt.model, rt.venue, rt.db, agent.Config{
			Name:            rt.cfg.Model.CopilotName,
			Persona:         rt.cfg.Model.Persona,
			MaxActionRounds: rt.cfg.Model.MaxActionRounds,
			UserID:          userID,
			Meter:           rt.meter,
		}),
		db:     rt.db,
		userID: userID,
		logger: rt.logger.With("user", userID),
	}

	cfg := console.Config{
		Copilot: copilot,
		Commands: command.NewHandler(command.Config{
			Venue:   rt.venue,
			EnvPath: rt.cfg.EnvFile,
			Usage:   rt.meter,
			UserID:  userID,
		}),
		UserID:     userID,
		VenueLabel: rt.cfg.Venue.Label,
		Theme:      schema.ThemeName(rt.cfg.Console.Theme),
		MaxLines:   rt.cfg.Console.BufferMaxLines,
		OnSnapshot: func(snap console.Snapshot) {
			if err := rt.snapshots.Save(userID, snap); err != nil {
				rt.logger.Warn("session snapshot save failed", "user", userID, "err", err)
			}
		},
	}

	if snap, ok, err := rt.snapshots.Load(userID); err != nil {
		rt.logger.Warn("session snapshot load failed", "user", userID, "err", err)
	} else if ok {
		cfg.Restore = &snap
	} else if msgs, err := rt.db.Messages(ctx, userID, rt.cfg.Console.BufferMaxLines); err != nil {
		rt.logger.Warn("message history load failed", "user", userID, "err", err)
	} else if len(msgs) > 0 {
		cfg.Restore = &console.Snapshot{Messages: msgs}
	}
	return cfg
}

// persistingCopilot tees each turn into the durable message log so a
// fresh session can rebuild its transcript without a snapshot.
type persistingCopilot struct {
	inner  console.Copilot
	db     *store.Store
	userID schema.UserID
	logger pslog.Logger
}

func (p *persistingCopilot) Send(ctx context.Context, history []schema.ChatMessage, prompt string) (<-chan console.AgentUpdate, error) {
	updates, err := p.inner.Send(ctx, history, prompt)
	if err != nil {
		return nil, err
	}
	p.save(ctx, schema.ChatMessage{Role: schema.RoleUser, Content: prompt})

	out := make(chan console.AgentUpdate, 16)
	go func() {
		defer close(out)
		var reply strings.Builder
		for upd := range updates {
			reply.WriteString(upd.Delta)
			out <- upd
		}
		if reply.Len() > 0 {
			p.save(ctx, schema.ChatMessage{Role: schema.RoleAssistant, Content: reply.String()})
		}
	}()
	return out, nil
}

// save detaches from the turn context, which may already be canceled
// when the stream ends; losing the assistant reply to that cancel
// would desync the durable log. Only the log markers carry over.
func (p *persistingCopilot) save(ctx context.Context, msg schema.ChatMessage) {
	detached := logx.CopyContextFields(context.Background(), ctx)
	if err := p.db.SaveMessage(detached, p.userID, msg); err != nil && p.logger != nil {
		p.logger.Warn("message log save failed", "err", err)
	}
}
