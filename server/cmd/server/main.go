// Command server is the Bootstrap entrypoint: load TLS material, open the
// Persistence Store, start the Admin Channel, and enter the accept loop.
package main

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/VictorNagibator/Messenger/server/internal/admin"
	"github.com/VictorNagibator/Messenger/server/internal/config"
	"github.com/VictorNagibator/Messenger/server/internal/dispatcher"
	"github.com/VictorNagibator/Messenger/server/internal/fanout"
	"github.com/VictorNagibator/Messenger/server/internal/pkg/helpers"
	"github.com/VictorNagibator/Messenger/server/internal/session"
	"github.com/VictorNagibator/Messenger/server/internal/storage"
	"github.com/VictorNagibator/Messenger/server/internal/transport"
)

func main() {
	helpers.InitLogging("messenger-server")
	cfg := config.Load()
	log.Info().Str("config", cfg.String()).Msg("starting")

	store, err := connectStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to persistence store")
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialise schema")
	}

	listener, err := transport.Listen(cfg.Server, cfg.TLS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start listener")
	}

	registry := session.New()
	fan := fanout.New(registry)

	if cfg.Admin.Stdin {
		adminChannel := admin.New(os.Stdin, store, listener)
		go adminChannel.Run()
	}

	log.Info().Str("addr", listener.Addr().String()).Msg("accepting connections")
	acceptLoop(listener, store, registry, fan)
	log.Info().Msg("server stopped")
}

// connectStore retries the initial database connection, tolerating the
// store becoming reachable slightly after the process starts (e.g. in a
// container orchestration where the database and server boot together).
func connectStore(cfg config.DatabaseConfig) (*storage.Store, error) {
	const attempts = 30
	const delay = 2 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		store, err := storage.New(cfg)
		if err == nil {
			return store, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Msg("database not ready, retrying")
		time.Sleep(delay)
	}
	return nil, lastErr
}

func acceptLoop(listener net.Listener, store *storage.Store, registry *session.Registry, fan *fanout.Engine) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("accept failed")
			continue
		}

		wrapped := transport.Wrap(conn)
		d := dispatcher.New(wrapped, store, registry, fan)
		go d.Run()
	}
}
