package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/fanout"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/metrics"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/relay"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/server/middleware"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/store"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/config"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/protocol"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state/statemanager"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/transport"
)

type App struct {
	logger    *slog.Logger
	states    state.Manager
	relay     *relay.Relay
	store     store.Store
	adapter   fanout.Adapter
	wg        sync.WaitGroup
	http      *http.Server
	config    *config.Config
	processID string

	ctx context.Context
}

func NewApp(rootCtx context.Context, logger *slog.Logger, cfg *config.Config, st store.Store, adapter fanout.Adapter, processID string) *App {
	states := statemanager.NewInMemoryManager(logger)
	messageRelay := relay.New(logger, states, st, adapter, processID)

	app := &App{
		logger:    logger,
		states:    states,
		relay:     messageRelay,
		store:     st,
		adapter:   adapter,
		config:    cfg,
		processID: processID,
		ctx:       rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret, st.GetUserByID),
			middleware.NewSessionCycler(logger, states.FindPresent),
		),
	)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(mux)

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: handler, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr), slog.String("processID", a.processID))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	// Deliver envelopes from other process instances to local room members.
	go func() {
		if err := a.adapter.Run(a.ctx, a.relay.HandleRemote); err != nil {
			a.logger.Error("Fanout adapter stopped", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	identity := reqMeta.Identity
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", identity.ID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			WriteTimeout: a.config.Transport.WriteTimeout,
		},
		nil,
		nil,
		a.logger,
	)
	stateConn, err := a.states.RegisterConnection(conn, reqMeta.IP, identity)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	metrics.ActiveConnections.Inc()

	// Record presence. The session cycler has already closed any previous
	// connection, but a near-simultaneous handshake can still slip through;
	// last connection wins either way.
	if displaced, wasOnline := a.states.RecordOnline(identity.ID, stateConn.ID); wasOnline && displaced != nil {
		displaced.Transport.Close(errors.New("session superseded by a newer connection"))
	}

	conn.SetOnMessageHandler(a.relay.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.handleDisconnect(identity.ID, id)
	})

	// Seed the new client with the current presence snapshot before the pumps
	// start, so the snapshot frame always precedes any command reply. The send
	// channel is buffered, so queueing it here cannot block.
	a.relay.SendTo(stateConn, protocol.EventOnlineUsers, protocol.OnlineUsersPayload{Users: a.states.OnlineUsers()})

	conn.Run()
	a.relay.BroadcastToAll(protocol.EventUserOnline, protocol.UserPresencePayload{UserID: identity.ID})

	connLogger.Info("User connection fully established", slog.String("connID", stateConn.ID.String()))
	<-conn.Done()
}

// handleDisconnect tears down a closed connection's state and, when it held
// the user's live presence entry, announces the departure.
func (a *App) handleDisconnect(userID string, connID uuid.UUID) {
	metrics.ActiveConnections.Dec()
	if _, ok := a.states.DeregisterConnection(connID); !ok {
		return
	}
	// A stale disconnect from a superseded connection must not clobber the
	// newer session's presence entry.
	if a.states.RecordOffline(userID, connID) {
		a.relay.BroadcastToAll(protocol.EventUserOffline, protocol.UserPresencePayload{UserID: userID})
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		http.Error(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.states.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()

	if err := a.adapter.Close(shutdownCtx); err != nil {
		a.logger.Error("Failed to close fanout adapter", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
