package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	actorFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool, actorFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		actorFlag:  actorFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) actor() string {
	if c.actorFlag != nil && strings.TrimSpace(*c.actorFlag) != "" {
		return strings.TrimSpace(*c.actorFlag)
	}
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return services.SystemActor
}

// operationContext stamps the actor, plus the request id when given, onto
// the command context.
func (c *commandContext) operationContext(cmd *cobra.Command, requestID string) context.Context {
	ctx := services.WithActor(cmd.Context(), c.actor())
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// withApp assembles the components for one command and closes them after.
func (c *commandContext) withApp(fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// findKennel accepts a kennel id, short name or slug.
func findKennel(ctx context.Context, st *store.Store, arg string) (*store.Kennel, error) {
	arg = strings.TrimSpace(arg)
	var (
		k   *store.Kennel
		err error
	)
	if id, convErr := strconv.ParseInt(arg, 10, 64); convErr == nil {
		k, err = st.GetKennel(ctx, id)
	} else if k, err = st.KennelByShortName(ctx, arg); err == nil && k == nil {
		k, err = st.KennelBySlug(ctx, strings.ToLower(arg))
	}
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, fmt.Errorf("kennel %q not found", arg)
	}
	return k, nil
}

// findSource accepts a source id or name.
func findSource(ctx context.Context, st *store.Store, arg string) (*store.Source, error) {
	arg = strings.TrimSpace(arg)
	var (
		src *store.Source
		err error
	)
	if id, convErr := strconv.ParseInt(arg, 10, 64); convErr == nil {
		src, err = st.GetSource(ctx, id)
	} else {
		src, err = st.SourceByName(ctx, arg)
	}
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("source %q not found", arg)
	}
	return src, nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
