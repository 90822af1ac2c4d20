// Package server hosts the canvas HTTP/WebSocket process: credential checks
// at upgrade, the placement pipeline, and broadcast fan-out to live sessions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/platform/timeouts"
	"github.com/louisbranch/gridpaint/internal/services/canvas/auth"
	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
	"github.com/louisbranch/gridpaint/internal/services/canvas/quota"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage"
	"golang.org/x/net/websocket"
)

const (
	tokenCookieName      = "gp_token"
	identifierCookieName = "gp_ident"

	relaySecretHeader = "X-Canvas-Relay-Secret"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// Config defines the inputs for the canvas transport boundary.
//
// Storage and identity material are injected so the WebSocket layer stays
// free of persistence concerns.
type Config struct {
	HTTPAddr string

	GridWidth  int
	GridHeight int

	Cells      storage.CellStore
	Quotas     storage.QuotaStore
	Identities storage.IdentityStore

	TokenSecret []byte

	QuotaCapacity     int
	ReplenishStep     int
	ReplenishInterval time.Duration

	PeerAddrs  []string
	PeerSecret string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the canvas HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server

	grid     domain.Grid
	cells    storage.CellStore
	ledger   *quota.Ledger
	verifier *auth.Verifier
	registry *sessionRegistry
	locks    *cellLocks

	scheduler *quota.Scheduler
	bridge    *peerBridge
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

type placePayload struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

type cellPayload struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Color   string `json:"color"`
	OwnerID string `json:"owner_id"`
}

type snapshotPayload struct {
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Cells  []cellPayload `json:"cells"`
}

type cellsPayload struct {
	Cells []cellPayload `json:"cells"`
}

type presencePayload struct {
	Count int `json:"count"`
}

type quotaPayload struct {
	Balance int `json:"balance"`
}

type exhaustedPayload struct {
	Exhausted bool `json:"exhausted"`
}

type wsParticipantContextKey struct{}

// NewServer builds a configured canvas server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.Cells == nil {
		return nil, errors.New("cell store is required")
	}
	if config.Quotas == nil {
		return nil, errors.New("quota store is required")
	}
	if config.Identities == nil {
		return nil, errors.New("identity store is required")
	}
	if len(config.TokenSecret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		grid:            domain.NewGrid(config.GridWidth, config.GridHeight),
		cells:           config.Cells,
		ledger:          quota.NewLedger(config.Quotas, config.QuotaCapacity, config.ReplenishStep),
		verifier:        auth.NewVerifier(config.Identities, config.TokenSecret),
		registry:        newSessionRegistry(),
		locks:           newCellLocks(),
		bridge:          newPeerBridge(config.PeerAddrs, config.PeerSecret),
	}
	s.scheduler = quota.NewScheduler(s.ledger, config.ReplenishInterval, s.pushQuotaBalances)

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.newHandler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

// Run creates and serves a canvas server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init canvas server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve canvas: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server and the replenishment scheduler until
// the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("canvas server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	schedulerDone := make(chan struct{})
	go func() {
		s.scheduler.Run(schedulerCtx)
		close(schedulerDone)
	}()

	serveErr := make(chan error, 1)
	log.Printf("canvas server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		stopScheduler()
		<-schedulerDone
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		stopScheduler()
		<-schedulerDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(s.handleWSConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		assertion := assertionFromRequest(r)
		participantID, err := s.verifier.Verify(r.Context(), assertion)
		if err != nil || strings.TrimSpace(participantID) == "" {
			log.Printf("canvas: websocket unauthorized: host=%q remote=%s code=%s err=%v",
				r.Host, r.RemoteAddr, apperrors.CodeOf(err), err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsParticipantContextKey{}, strings.TrimSpace(participantID))
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	mux.HandleFunc("/internal/events", s.handlePeerEvents)

	return mux
}

func assertionFromRequest(r *http.Request) auth.Assertion {
	if r == nil {
		return auth.Assertion{}
	}
	var assertion auth.Assertion
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		assertion.Token = strings.TrimSpace(cookie.Value)
	}
	if cookie, err := r.Cookie(identifierCookieName); err == nil {
		assertion.Identifier = strings.TrimSpace(cookie.Value)
	}
	return assertion
}

func (s *Server) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	participantID := ""
	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
		if resolved, ok := ctx.Value(wsParticipantContextKey{}).(string); ok {
			participantID = strings.TrimSpace(resolved)
		}
	}
	if participantID == "" {
		return
	}

	if err := s.ledger.Ensure(ctx, participantID); err != nil {
		log.Printf("canvas: ensure balance for participant=%q: %v", participantID, err)
		return
	}

	peer := newSessionPeer(json.NewEncoder(conn))
	sess := &wsSession{participantID: participantID, peer: peer}

	count := s.registry.register(sess)
	defer func() {
		remaining := s.registry.unregister(sess)
		s.broadcastPresence(remaining)
	}()
	s.broadcastPresence(count)

	if err := s.sendSnapshot(ctx, sess); err != nil {
		log.Printf("canvas: snapshot for participant=%q: %v", participantID, err)
		return
	}
	s.sendQuota(ctx, sess)

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", apperrors.CodeInvalidArgument, "invalid frame payload", nil)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeInvalidArgument, "payload too large", nil)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeInvalidArgument, "rate limit exceeded", nil)
			return
		}

		switch frame.Type {
		case "canvas.place":
			s.handlePlaceFrame(ctx, sess, frame)
		case "canvas.info":
			s.handleInfoFrame(ctx, sess, frame)
		default:
			_ = writeWSError(peer, frame.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type", nil)
		}
	}
}

// sendSnapshot pushes the full grid state to a freshly registered session.
// The snapshot is a point-in-time read; later placements arrive as
// canvas.cells events, so last write still wins on every coordinate.
func (s *Server) sendSnapshot(ctx context.Context, sess *wsSession) error {
	readCtx, cancel := context.WithTimeout(ctx, timeouts.StoreOp)
	defer cancel()

	cells, err := s.cells.ReadAllCells(readCtx)
	if err != nil {
		_ = writeWSError(sess.peer, "", apperrors.CodeStorageUnavailable, "canvas state unavailable", nil)
		return err
	}

	payload := snapshotPayload{
		Width:  s.grid.Width,
		Height: s.grid.Height,
		Cells:  make([]cellPayload, 0, len(cells)),
	}
	for _, cell := range cells {
		payload.Cells = append(payload.Cells, cellPayload{
			X:       cell.X,
			Y:       cell.Y,
			Color:   cell.Color,
			OwnerID: cell.OwnerID,
		})
	}
	return sess.peer.writeFrame(wsFrame{
		Type:    "canvas.snapshot",
		Payload: mustJSON(payload),
	})
}

func (s *Server) sendQuota(ctx context.Context, sess *wsSession) {
	balance, err := s.ledger.BalanceOf(ctx, sess.participantID)
	if err != nil {
		log.Printf("canvas: read balance for participant=%q: %v", sess.participantID, err)
		return
	}
	_ = sess.peer.writeFrame(wsFrame{
		Type:    "canvas.quota",
		Payload: mustJSON(quotaPayload{Balance: balance}),
	})
}

func (s *Server) handleInfoFrame(ctx context.Context, sess *wsSession, frame wsFrame) {
	balance, err := s.ledger.BalanceOf(ctx, sess.participantID)
	if err != nil {
		code := apperrors.CodeOf(err)
		_ = writeWSError(sess.peer, frame.RequestID, code, "balance unavailable", nil)
		return
	}
	_ = sess.peer.writeFrame(wsFrame{
		Type:      "canvas.quota",
		RequestID: frame.RequestID,
		Payload:   mustJSON(quotaPayload{Balance: balance}),
	})
	_ = sess.peer.writeFrame(wsFrame{
		Type:      "canvas.exhausted",
		RequestID: frame.RequestID,
		Payload:   mustJSON(exhaustedPayload{Exhausted: balance == 0}),
	})
	_ = sess.peer.writeFrame(wsFrame{
		Type:      "canvas.presence",
		RequestID: frame.RequestID,
		Payload:   mustJSON(presencePayload{Count: s.registry.count()}),
	})
}

// broadcastPresence pushes the online session count to every live session.
func (s *Server) broadcastPresence(count int) {
	frame := wsFrame{
		Type:    "canvas.presence",
		Payload: mustJSON(presencePayload{Count: count}),
	}
	for _, sess := range s.registry.all() {
		_ = sess.peer.writeFrame(frame)
	}
}

// pushQuotaBalances pushes each connected participant's refreshed balance
// after a replenishment pass.
func (s *Server) pushQuotaBalances(ctx context.Context) {
	for participantID, sessions := range s.registry.byParticipant() {
		balance, err := s.ledger.BalanceOf(ctx, participantID)
		if err != nil {
			log.Printf("canvas: read balance for participant=%q: %v", participantID, err)
			continue
		}
		frame := wsFrame{
			Type:    "canvas.quota",
			Payload: mustJSON(quotaPayload{Balance: balance}),
		}
		for _, sess := range sessions {
			_ = sess.peer.writeFrame(frame)
		}
	}
}

func writeWSError(peer *sessionPeer, requestID string, code apperrors.Code, message string, details map[string]string) error {
	return peer.writeFrame(wsFrame{
		Type:      "canvas.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code.WireCode(),
				Message:   message,
				Retryable: code.Retryable(),
				Details:   details,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
