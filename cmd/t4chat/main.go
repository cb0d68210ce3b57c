package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/debug"
	"goa.design/clue/log"

	"github.com/huminex/t4chat/api"
	"github.com/huminex/t4chat/config"
	"github.com/huminex/t4chat/features/blob/s3"
	"github.com/huminex/t4chat/features/imagegen/gemini"
	"github.com/huminex/t4chat/features/memory/mem0"
	"github.com/huminex/t4chat/features/model/anthropic"
	"github.com/huminex/t4chat/features/model/openai"
	"github.com/huminex/t4chat/features/search/tavily"
	storemongo "github.com/huminex/t4chat/features/store/mongo"
	lockredis "github.com/huminex/t4chat/features/turnlock/redis"
	"github.com/huminex/t4chat/runtime/chat/memory"
	meminmem "github.com/huminex/t4chat/runtime/chat/memory/inmem"
	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/producer"
	"github.com/huminex/t4chat/runtime/chat/store"
	"github.com/huminex/t4chat/runtime/chat/store/inmem"
	"github.com/huminex/t4chat/runtime/chat/tools"
	"github.com/huminex/t4chat/runtime/chat/turnlock"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to the YAML configuration file")
		addrF   = flag.String("addr", "", "Listen address (overrides the config file)")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}
	if *addrF != "" {
		cfg.Server.Addr = *addrF
	}

	client, err := newModelClient(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "configure model provider")
	}

	st, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "configure store")
	}
	defer cleanup()

	locker, err := newLocker(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "configure turn lock")
	}

	prod, err := producer.New(producer.Options{
		Client:        client,
		MaxToolRounds: cfg.Chat.MaxToolRounds,
		Temperature:   cfg.Chat.Temperature,
	})
	if err != nil {
		log.Fatalf(ctx, err, "configure producer")
	}

	var uploader tools.Uploader
	if cfg.Blob.Bucket != "" {
		up, err := s3.Connect(ctx, cfg.Blob.Bucket, cfg.Blob.Prefix, cfg.Blob.PublicBaseURL)
		if err != nil {
			log.Fatalf(ctx, err, "configure blob store")
		}
		uploader = up
	}

	var searcher tools.Searcher
	if cfg.Search.TavilyAPIKey != "" {
		sc, err := tavily.New(tavily.Options{APIKey: cfg.Search.TavilyAPIKey})
		if err != nil {
			log.Fatalf(ctx, err, "configure web search")
		}
		searcher = sc
	}

	memories, err := newMemories(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "configure memories")
	}

	srv, err := api.New(api.Options{
		Store:              st,
		Producer:           prod,
		Locker:             locker,
		Memories:           memories,
		Searcher:           searcher,
		ImageGen:           gemini.New(gemini.Options{}),
		Uploader:           uploader,
		ModelName:          cfg.Model.Name,
		ModelService:       cfg.Model.Service,
		SystemPrompt:       cfg.Chat.SystemPrompt,
		WebSearchAvailable: searcher != nil,
	})
	if err != nil {
		log.Fatalf(ctx, err, "configure server")
	}

	var handler http.Handler = srv.Router()
	handler = debug.HTTP()(handler)
	handler = log.HTTP(ctx)(handler)

	httpsvr := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "listening on %s", cfg.Server.Addr)
		if err := httpsvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpsvr.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "shutdown")
	}
	log.Printf(ctx, "exited")
}

func newModelClient(cfg *config.Config) (model.Client, error) {
	switch cfg.Model.Provider {
	case "openai":
		return openai.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name)
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.Name)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "inmem":
		return inmem.New(), func() {}, nil
	case "mongo":
		st, err := storemongo.Connect(ctx, cfg.Store.MongoURI, cfg.Store.Database)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(context.Background()); err != nil {
				log.Errorf(ctx, err, "close mongo client")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newMemories(cfg *config.Config) (memory.Store, error) {
	switch cfg.Memory.Driver {
	case "":
		return nil, nil
	case "inmem":
		return meminmem.New(), nil
	case "mem0":
		return mem0.New(mem0.Options{
			APIKey:  cfg.Memory.Mem0APIKey,
			BaseURL: cfg.Memory.Mem0BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown memory driver %q", cfg.Memory.Driver)
	}
}

func newLocker(cfg *config.Config) (turnlock.Locker, error) {
	switch cfg.TurnLock.Driver {
	case "inmem":
		return turnlock.NewInMem(), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.TurnLock.RedisAddr})
		return lockredis.New(lockredis.Options{Client: client})
	default:
		return nil, fmt.Errorf("unknown turnlock driver %q", cfg.TurnLock.Driver)
	}
}
