package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	authproviders "github.com/cbodonnell/clash/pkg/auth/providers"
	"github.com/cbodonnell/clash/pkg/clash"
	"github.com/cbodonnell/clash/pkg/client/api"
	"github.com/cbodonnell/clash/pkg/client/network"
	"github.com/cbodonnell/clash/pkg/config"
	"github.com/cbodonnell/clash/pkg/dispatch"
	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/session"
	"github.com/cbodonnell/clash/pkg/state"
	"github.com/cbodonnell/clash/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional env file")
	logLevel := flag.String("log-level", "", "Log level (overrides CLASH_LOG_LEVEL)")
	gameID := flag.String("game", "", "Game id (overrides CLASH_GAME_ID)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *gameID != "" {
		cfg.GameID = *gameID
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stderr, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	defer logger.Sync()
	log.Info("Log level set to %s", parsedLogLevel)
	log.Info("Starting client version %s", version.Get())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("Client stopped: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	claims, err := authproviders.NewUnverifiedJWTAuthProvider().VerifyToken(ctx, cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to read player id from token: %v", err)
	}
	playerID := claims.UID

	store, err := session.Open(ctx, cfg.SessionURL)
	if err != nil {
		return fmt.Errorf("failed to open session store: %v", err)
	}
	defer store.Close(context.Background())

	client := api.NewClient(api.NewClientOptions{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
	})

	if cfg.GameID == "" {
		view, err := client.FetchGameView(ctx)
		if err != nil {
			return fmt.Errorf("failed to find current game: %v", err)
		}
		cfg.GameID = view.ID
	}
	log.Info("Player %s joining game %s", playerID, cfg.GameID)

	cache := state.NewInMemoryCache()

	var engine *clash.Engine
	channel := network.NewChannelClient(network.NewChannelClientOptions{
		URL:        cfg.WSURL,
		Token:      cfg.Token,
		GameID:     cfg.GameID,
		OnSnapshot: cache.Apply,
		OnDeck:     cache.ApplyDeck,
		OnConnect: func() {
			go func() {
				if err := engine.Resync(ctx); err != nil {
					log.Warn("Failed to resync after reconnect: %v", err)
				}
			}()
		},
		ReconnectDelay: cfg.Timing.ReconnectDelay,
	})

	dispatcher := dispatch.NewDispatcher(dispatch.NewDispatcherOptions{
		Publisher: channel,
		API:       client,
	})

	engine = clash.NewEngine(clash.NewEngineOptions{
		PlayerID:      playerID,
		Cache:         cache,
		Dispatcher:    dispatcher,
		API:           client,
		ProgressStore: session.NewProgressStore(store),
		Timing: clash.Timing{
			CountdownTicks:    cfg.Timing.CountdownTicks,
			CountdownInterval: cfg.Timing.CountdownInterval,
			TurnDelay:         cfg.Timing.TurnDelay,
			DecisionDelay:     cfg.Timing.DecisionDelay,
			ConcludedDelay:    cfg.Timing.ConcludedDelay,
		},
	})
	engine.Subscribe(printProjection)

	if err := engine.Start(ctx, cfg.GameID); err != nil {
		return fmt.Errorf("failed to start engine: %v", err)
	}
	defer engine.Stop()

	if err := channel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start channel: %v", err)
	}
	defer channel.Stop()

	go readCommands(ctx, engine)

	<-ctx.Done()
	log.Info("Shutting down")
	return nil
}

func printProjection(p clash.Projection) {
	fmt.Printf("[%s] %s\n", p.Phase, p.Narrative)
	if p.MyTurn {
		targets := make([]string, 0, len(p.Opponents))
		for _, o := range p.Opponents {
			if _, ok := p.CardsInPlay[o.Seat]; ok {
				targets = append(targets, fmt.Sprintf("%d=%s", o.Seat, o.DisplayName()))
			}
		}
		fmt.Printf("  attack <seat> (%s) or skip\n", strings.Join(targets, ", "))
	}
	if p.CanPlayCard {
		for i, c := range p.Hand {
			fmt.Printf("  play %d: %s\n", i, c)
		}
	}
	if p.CanForfeit {
		fmt.Println("  forfeit")
	}
}

func readCommands(ctx context.Context, engine *clash.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := handleCommand(ctx, engine, fields); err != nil {
			fmt.Printf("  %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("Failed to read commands: %v", err)
	}
}

func handleCommand(ctx context.Context, engine *clash.Engine, fields []string) error {
	switch fields[0] {
	case "ready":
		return engine.ToggleReady(ctx)
	case "skip":
		return engine.SkipTurn(ctx)
	case "forfeit":
		return engine.ForfeitClash(ctx)
	case "play":
		i, err := argument(fields)
		if err != nil {
			return err
		}
		hand := engine.Projection().Hand
		if i < 0 || i >= len(hand) {
			return fmt.Errorf("no card %d in hand", i)
		}
		return engine.PlayCard(ctx, hand[i])
	case "target":
		seat, err := argument(fields)
		if err != nil {
			return err
		}
		return engine.SelectTarget(ctx, seat)
	case "attack":
		seat, err := argument(fields)
		if err != nil {
			return err
		}
		return engine.AttackCard(ctx, seat)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func argument(fields []string) (int, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("%s takes one number", fields[0])
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", fields[1])
	}
	return n, nil
}
