package main

import (
	"context"
	"fmt"
	stdos "os"
	"path/filepath"
	"strings"

	"github.com/opencloud/opencloud/pkg/auth"
	"github.com/opencloud/opencloud/pkg/client"
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/opencloud/opencloud/pkg/os"
	"github.com/opencloud/opencloud/pkg/store"
)

var Version = "?"

const usage = `usage: opencloud [flags] <command>

commands:
  login [provider]   log in (with the provider code or IdP id)
  logout             forget the saved login
  games [query]      list the games
  sessions           list the active sessions
  play <appId>       start a game and stream it
  resume <id>        connect to an active session`

func main() {
	conf, args, err := config.ParseFlags(stdos.Args[1:])
	if err != nil {
		fmt.Fprintln(stdos.Stderr, err)
		stdos.Exit(2)
	}
	if len(args) == 0 {
		fmt.Fprintln(stdos.Stderr, usage)
		stdos.Exit(2)
	}

	log := logger.NewConsole(conf.Debug, "oc", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	st, err := openStore(conf.Storage.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}
	c, err := client.New(conf, st, auth.ConsoleSurface{In: stdos.Stdin, Out: stdos.Stdout}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}
	c.Run()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-os.ExpectTermination()
		cancel()
	}()
	defer func() {
		if err := c.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()

	streaming, err := run(ctx, c, args)
	if err != nil {
		log.Error().Err(err).Msg(args[0])
		return
	}
	if streaming {
		<-ctx.Done()
	}
}

// run does the command, it tells if there is a stream to wait for.
func run(ctx context.Context, c *client.Client, args []string) (bool, error) {
	cmd, arg := args[0], strings.Join(args[1:], " ")
	if err := c.Auth.Initialize(ctx); err != nil {
		return false, err
	}
	switch cmd {
	case "login":
		s, err := c.Login(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Printf("logged in as %v (%v), %v\n", s.User.DisplayName, s.User.MembershipTier, s.Provider.DisplayName)
	case "logout":
		return false, c.Auth.Logout()
	case "games":
		for _, g := range c.Catalog.Search(ctx, arg) {
			fmt.Printf("%-10v %-48v %v\n", g.ID, g.Title, g.Store)
		}
	case "sessions":
		if _, err := c.Login(ctx, ""); err != nil {
			return false, err
		}
		s := c.Auth.Session()
		for _, info := range c.Sessions.Active(ctx, s.Provider.StreamingBaseURL) {
			fmt.Printf("%v %v %v\n", info.SessionID, info.Status, info.GPUType)
		}
	case "play", "resume":
		if arg == "" {
			return false, fmt.Errorf("%v needs an id", cmd)
		}
		if _, err := c.Login(ctx, ""); err != nil {
			return false, err
		}
		start := c.Play
		if cmd == "resume" {
			start = c.Resume
		}
		info, err := start(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Printf("streaming %v from %v\n", info.SessionID, info.SignalingServer)
		return true, nil
	default:
		return false, fmt.Errorf("unknown command, %v", usage)
	}
	return false, nil
}

func openStore(dir string) (store.Store, error) {
	if dir == "" {
		base, err := stdos.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "opencloud")
	}
	return store.NewFileStore(dir)
}
