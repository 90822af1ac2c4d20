package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/louisbranch/gridpaint/internal/platform/timeouts"
	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
)

// peerEvent is the relay envelope exchanged between canvas instances.
type peerEvent struct {
	Kind domain.EventKind `json:"kind"`
	Cell cellPayload      `json:"cell"`
}

// peerBridge hands committed placements to sibling instances. Delivery is
// best-effort: a dead peer costs one log line, never a failed placement.
type peerBridge struct {
	addrs      []string
	secret     string
	httpClient *http.Client
}

func newPeerBridge(addrs []string, secret string) *peerBridge {
	cleaned := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimRight(addr, "/"))
	}
	return &peerBridge{
		addrs:  cleaned,
		secret: strings.TrimSpace(secret),
		httpClient: &http.Client{
			Timeout: timeouts.PeerPublish,
		},
	}
}

func (b *peerBridge) enabled() bool {
	return b != nil && len(b.addrs) > 0
}

// publish posts a committed cell to every configured peer. Peers that share
// the same store only need the broadcast, not the write.
func (b *peerBridge) publish(cell domain.Cell) {
	if !b.enabled() {
		return
	}

	body, err := json.Marshal(peerEvent{
		Kind: domain.EventCellCommitted,
		Cell: cellPayload{
			X:       cell.X,
			Y:       cell.Y,
			Color:   cell.Color,
			OwnerID: cell.OwnerID,
		},
	})
	if err != nil {
		log.Printf("canvas: marshal peer event: %v", err)
		return
	}

	for _, addr := range b.addrs {
		if err := b.post(addr, body); err != nil {
			log.Printf("canvas: publish to peer %s: %v", addr, err)
		}
	}
}

func (b *peerBridge) post(addr string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.PeerPublish)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/internal/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.secret != "" {
		req.Header.Set(relaySecretHeader, b.secret)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return &peerStatusError{status: resp.StatusCode}
	}
	return nil
}

type peerStatusError struct {
	status int
}

func (e *peerStatusError) Error() string {
	return http.StatusText(e.status)
}

// handlePeerEvents replays placements committed on a sibling instance to the
// local sessions. The cell is already persisted by the committing instance;
// only the broadcast is replayed here.
func (s *Server) handlePeerEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	secret := strings.TrimSpace(s.bridge.secret)
	if secret == "" || strings.TrimSpace(r.Header.Get(relaySecretHeader)) != secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var event peerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	switch event.Kind {
	case domain.EventCellCommitted:
		if !s.grid.Contains(event.Cell.X, event.Cell.Y) {
			http.Error(w, "cell out of bounds", http.StatusBadRequest)
			return
		}
		s.publishLocal(domain.Cell{
			X:       event.Cell.X,
			Y:       event.Cell.Y,
			Color:   event.Cell.Color,
			OwnerID: event.Cell.OwnerID,
		})
	default:
		http.Error(w, "unsupported event kind", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
