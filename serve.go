package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chandiniv1/secret-number-game/internal/accounts"
	"github.com/chandiniv1/secret-number-game/internal/config"
	"github.com/chandiniv1/secret-number-game/internal/events"
	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/httpserver"
	"github.com/chandiniv1/secret-number-game/internal/oracle"
	"github.com/chandiniv1/secret-number-game/internal/proof"
	"github.com/chandiniv1/secret-number-game/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game API and the decryption oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// persistence is the storage chosen by STORE.
type persistence struct {
	db     *sql.DB
	game   game.Store
	cts    fhe.Store
	events events.Log
}

// openPersistence always opens SQLite for accounts. STORE=memory keeps the
// game, ciphertexts and events in process and uses a private in-memory
// database for users.
func openPersistence(cfg config.Config) (*persistence, error) {
	dsn := cfg.DBPath
	if cfg.Store == "memory" {
		dsn = ":memory:"
	}
	db, err := store.OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	switch cfg.Store {
	case "memory":
		return &persistence{db: db, game: store.NewMemoryStore(), cts: fhe.NewMemoryStore(), events: events.NewMemoryLog()}, nil
	case "sqlite":
		return &persistence{db: db, game: store.NewSQLStore(db), cts: store.NewCiphertextStore(db), events: events.NewSQLLog(db)}, nil
	}
	db.Close()
	return nil, errors.New("STORE must be sqlite or memory")
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	p, err := openPersistence(cfg)
	if err != nil {
		return err
	}
	defer p.db.Close()

	scheme, err := loadScheme(cfg.FHEBackend, cfg.KeysDir, true)
	if err != nil {
		return err
	}
	inputKey, err := proof.LoadOrCreateKey(filepath.Join(cfg.KeysDir, inputKeyFile))
	if err != nil {
		return err
	}
	authorityKey, err := proof.LoadOrCreateKey(filepath.Join(cfg.KeysDir, authorityKeyFile))
	if err != nil {
		return err
	}

	accts := accounts.NewService(p.db, cfg.JWTSecret, cfg.JWTTTL)
	if _, err := accts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	attestor := proof.NewInputAttestor(inputKey, "fheguess:"+cfg.AdminUsername)
	cp := fhe.NewCoprocessor(scheme, attestor.Verifier(), p.cts)

	// In-process delivery needs the machine, which needs the oracle.
	var machine *game.Machine
	var deliverer oracle.Deliverer = oracle.DelivererFunc(func(ctx context.Context, cb oracle.Callback) error {
		return machine.CallbackGuessResult(ctx, cb.RequestID, cb.Cleartext, cb.Proof)
	})
	if cfg.OracleCallbackURL != "" {
		deliverer = oracle.NewHTTPDeliverer(cfg.OracleCallbackURL)
	}
	svc := oracle.New(oracle.Config{
		Workers:      cfg.OracleWorkers,
		Delay:        cfg.OracleDelay,
		RetryTimeout: cfg.OracleRetryTimeout,
		RequeueDelay: cfg.OracleRequeueDelay,
	}, cp, scheme, proof.NewDecryptionSigner(authorityKey, "fheguess-authority"), deliverer, log.Logger)

	machine, err = game.New(ctx, cfg.AdminUsername, p.game, cp, cp, svc,
		game.WithEventSink(events.NewSink(p.events, log.Logger)),
		game.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}

	unresolved, err := machine.Unresolved(ctx)
	if err != nil {
		return err
	}
	restored, err := svc.RestoreAll(ctx, unresolved)
	if err != nil {
		return err
	}
	if restored > 0 {
		log.Info().Int("requests", restored).Msg("restored unresolved decryption requests")
	}

	svc.Start()
	defer svc.Stop()

	srv := httpserver.New(httpserver.Deps{
		Machine:     machine,
		Accounts:    accts,
		Coprocessor: cp,
		Attestor:    attestor,
		Scheme:      scheme,
		Events:      p.events,
	}, httpserver.Options{
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure,
		ClientOrigin: cfg.ClientOrigin,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store).
			Str("fhe", scheme.Name()).
			Int("oracleWorkers", cfg.OracleWorkers).
			Msg("starting fheguess")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
