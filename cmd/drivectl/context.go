package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/database"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/mail"
	"github.com/agjmills/drive/internal/store"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"
)

// commandContext opens configuration and the database once, on first use.
type commandContext struct {
	once sync.Once
	err  error

	cfg      *config.Config
	db       *gorm.DB
	users    *store.GormStore
	accounts *account.Service
	sender   mail.Sender
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		// Keep stdout for command output.
		logger.InitWithWriter(cfg.Env, os.Stderr)

		db, err := database.Connect(cfg)
		if err != nil {
			c.err = err
			return
		}
		if err := database.Migrate(db); err != nil {
			c.err = err
			return
		}

		c.cfg = cfg
		c.db = db
		c.users = store.NewGormStore(db)
		c.sender = mail.NewSenderFromConfig(cfg)
		// Registration state is never touched from the CLI, so an in-memory
		// session store is enough.
		c.accounts = account.NewService(cfg, c.users, scs.New(), auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer), c.sender)
	})
	if c.err != nil {
		return fmt.Errorf("setup: %w", c.err)
	}
	return nil
}

func (c *commandContext) close() {
	if c.db == nil {
		return
	}
	if sqlDB, err := c.db.DB(); err == nil {
		sqlDB.Close()
	}
}
