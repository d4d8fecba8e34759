package internal

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/queuegate/queuegate/internal/core"
	"github.com/queuegate/queuegate/internal/core/data"
	"github.com/queuegate/queuegate/internal/core/debug"
	"github.com/queuegate/queuegate/internal/gateway"
	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/queue"
	"github.com/queuegate/queuegate/internal/session"
	"github.com/queuegate/queuegate/internal/token"
	"github.com/queuegate/queuegate/internal/whitelist"
)

// Controller is the main entrypoint for queuegate. It's responsible for
// initializing any shared resources (such as the database, logging, and the
// identity caches), wiring the components together, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	db     *gorm.DB
}

func (c *Controller) Start(ctx context.Context) {
	defer c.Shutdown()

	var err error
	// Set up the logger, which will be used by all components.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		fmt.Printf("error initializing logger: %v\n", err)
		return
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.PprofEnabled {
		debug.StartUtilities(c.logger, c.Config.Debugging.PprofPort)
	}

	// Connect the profile store and warm the identity cache with every
	// player we've seen before, so skins and ids survive restarts.
	c.db, err = data.Initialize(c.Config.Database.Engine, c.Config.DatabaseURL(), c.Config.Debugging.PprofEnabled)
	if err != nil {
		c.logger.Errorf("error initializing profile store: %v", err)
		return
	}
	identities := identity.NewCache()
	profiles, err := data.AllProfiles(c.db)
	if err != nil {
		c.logger.Errorf("error loading stored profiles: %v", err)
		return
	}
	for _, profile := range profiles {
		identities.Put(profile)
	}
	c.logger.Infof("loaded %d stored profiles", len(profiles))

	tokens, err := token.NewAuthority()
	if err != nil {
		c.logger.Errorf("error generating session tokens: %v", err)
		return
	}

	// Start the session service and make sure it launches before anything
	// can dial the backend, since authenticated logins depend on it.
	sessionService := &session.Service{Logger: c.logger, Cache: identities, Tokens: tokens}
	if err := sessionService.Start(ctx, c.Config.SessionServer.Port); err != nil {
		c.logger.Errorf("error starting session service: %v", err)
		return
	}
	if c.Config.Backend.OnlineMode {
		if err := c.waitForPort(c.Config.SessionServer.Port); err != nil {
			c.logger.Errorf("timed out waiting for session service to initialize")
			return
		}
	}

	var wl *whitelist.Whitelist
	if c.Config.Whitelist.Enabled {
		wl = whitelist.New(c.Config.Whitelist.FilePath, c.logger)
		if err := wl.Start(ctx, c.Config.WhitelistReloadInterval()); err != nil {
			c.logger.Errorf("error loading whitelist: %v", err)
			return
		}
	}

	admission := queue.NewAdmission(c.Config.Backend.MaxPlayers)
	gatewayServer := &gateway.Server{
		Config:     c.Config,
		Logger:     c.logger,
		Identities: identities,
		IPs:        identity.NewIPHistory(),
		Whitelist:  wl,
		Admission:  admission,
		Tokens:     tokens,
		DB:         c.db,
	}
	if err := gatewayServer.Start(ctx); err != nil {
		c.logger.Errorf("error starting gateway: %v", err)
		return
	}

	if c.Config.Queue.Enabled {
		promotions := &queue.Controller{
			Admission: admission,
			Interval:  c.Config.PromotionInterval(),
			Promoter:  gatewayServer,
			Logger:    c.logger,
		}
		promotions.Start(ctx)
	}

	<-ctx.Done()
}

// waitForPort blocks until the local TCP port accepts connections.
func (c *Controller) waitForPort(port int) error {
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()

	addr := fmt.Sprintf("localhost:%d", port)
	for {
		select {
		case <-deadline.C:
			return fmt.Errorf("%s never became reachable", addr)
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(time.Second)
	}
}

func (c *Controller) Shutdown() {
	if c.db != nil {
		data.Shutdown(c.db)
	}
}
