package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripvault/core"
	"tripvault/crypto"
	"tripvault/gateway/auth"
	"tripvault/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	admin, err := crypto.DecodeAddress(cfg.AdminAddress)
	if err != nil {
		log.Fatalf("parse admin address: %v", err)
	}
	var adminBytes [20]byte
	copy(adminBytes[:], admin.Bytes())

	db, err := storage.NewLevelDB(cfg.LedgerPath)
	if err != nil {
		log.Fatalf("open ledger database: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	ledger := core.NewLedger(db, adminBytes, cfg.ChainID)
	ledger.SetEmitter(newFeedEmitter(store))

	var signer *IntentSigner
	if cfg.SignerKeystorePath != "" {
		signer, err = NewIntentSigner(cfg.SignerKeystorePath, cfg.SignerPassphrase)
		if err != nil {
			log.Fatalf("load intent signer: %v", err)
		}
	}

	secrets := make(map[string]string, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		secrets[key.Key] = key.Secret
	}
	authenticator := auth.NewAuthenticator(secrets, cfg.AllowedTimestampSkew, nil)
	server := NewServer(authenticator, ledger, store, signer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server)

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: mux,
	}

	go func() {
		log.Printf("booking gateway listening on %s", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down booking gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}
