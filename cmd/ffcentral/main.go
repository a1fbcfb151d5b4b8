package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ffcentral/config"
	"ffcentral/engine"
	"ffcentral/messaging"
	"ffcentral/navigation"
	"ffcentral/nodestate"
	"ffcentral/protocol"
	"ffcentral/store"
	"ffcentral/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "ffcentral.yaml", "path to config file")
	writeConfig := flag.Bool("write-config", false, "write the effective config to -config and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ffcentral", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		log.Printf("ffcentral: config written to %s", *configPath)
		return
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("ffcentral: database open (%s)", cfg.Database.Driver)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	var redisStore *nodestate.RedisStore
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("ffcentral: redis not available (%v), running without cache", err)
	} else {
		redisStore = nodestate.NewRedisStore(redisClient)
		log.Printf("ffcentral: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	nodeStateMgr := nodestate.NewManager(redisStore)

	// Layout
	layout, err := navigation.LoadLayout(cfg.Layout.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("load layout: %v", err)
		}
		log.Printf("ffcentral: no layout at %s, waiting for one", cfg.Layout.Path)
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("ffcentral: messaging connect failed (%v)", err)
	} else {
		log.Printf("ffcentral: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Engine
	eng, err := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		NodeState:  nodeStateMgr,
		MsgClient:  msgClient,
		Layout:     layout,
	})
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	for _, filter := range protocol.Subscriptions() {
		if err := msgClient.Subscribe(filter, 2, eng.HandleMessage); err != nil {
			log.Printf("ffcentral: subscribe %s: %v", filter, err)
		}
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("ffcentral: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("ffcentral: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("ffcentral: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("ffcentral: stopped")
}
