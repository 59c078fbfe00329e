package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/logging"
	"scanpipe/internal/services"
	"scanpipe/internal/store"
	"scanpipe/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger

	hubOnce sync.Once
	hub     *logging.StreamHub
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.log = logging.NewNop()
		cfg, err := c.ensureConfig()
		if err != nil {
			return
		}
		if logger, err := logging.NewFromConfig(cfg, nil); err == nil {
			c.log = logger
		}
	})
	return c.log
}

// streamHub returns the in-memory log stream shared by the commands of one
// invocation, sized by logging.stream_capacity.
func (c *commandContext) streamHub() *logging.StreamHub {
	c.hubOnce.Do(func() {
		capacity := 0
		if cfg, err := c.ensureConfig(); err == nil {
			capacity = cfg.Logging.StreamCapacity
		}
		c.hub = logging.NewStreamHub(capacity)
	})
	return c.hub
}

// withStore opens the progress database for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open progress database: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// withController starts a workflow controller with collectionID open and
// stops it when fn returns.
func (c *commandContext) withController(ctx context.Context, collectionID string, opts []workflow.Option, fn func(*workflow.Controller, *store.Store) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		logger := c.logger()
		opts = append([]workflow.Option{workflow.WithLogHub(c.streamHub())}, opts...)
		ctrl := workflow.NewController(cfg, st, itemops.NewRegistry(cfg, logger), logger, opts...)
		if err := ctrl.Start(ctx); err != nil {
			return err
		}
		defer ctrl.Stop()
		if collectionID != "" {
			if _, err := ctrl.OpenProject(ctx, collectionID); err != nil {
				return err
			}
		}
		return fn(ctrl, st)
	})
}

func lookupItem(ctx context.Context, st *store.Store, collectionID, identifier string) (*store.Project, *store.Item, error) {
	project, err := st.ProjectByCollectionID(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, fmt.Errorf("%w: no project found in database for collection_id %s", services.ErrNotFound, collectionID)
	}
	item, err := st.ItemByIdentifier(ctx, project.ID, identifier)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, fmt.Errorf("%w: no item %s in %s", services.ErrNotFound, identifier, collectionID)
	}
	return project, item, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
