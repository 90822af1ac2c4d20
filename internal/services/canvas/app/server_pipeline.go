package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
	"github.com/louisbranch/gridpaint/internal/platform/timeouts"
	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
)

// handlePlaceFrame runs one placement through the full pipeline: validate,
// consume quota, persist, fan out.
//
// Quota is consumed before the cell write so a participant can never land
// more cells than their balance covers. When the write fails the consumed
// unit is refunded, so no charge outlives an uncommitted placement.
func (s *Server) handlePlaceFrame(ctx context.Context, sess *wsSession, frame wsFrame) {
	var payload placePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(sess.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid place payload", nil)
		return
	}

	color, err := s.grid.ValidatePlacement(payload.X, payload.Y, payload.Color)
	if err != nil {
		s.rejectPlacement(sess, frame.RequestID, err)
		return
	}

	balance, err := s.ledger.TryConsume(ctx, sess.participantID)
	if err != nil {
		s.rejectPlacement(sess, frame.RequestID, err)
		return
	}

	cell := domain.Cell{
		X:         payload.X,
		Y:         payload.Y,
		Color:     color,
		OwnerID:   sess.participantID,
		UpdatedAt: time.Now().UTC(),
	}

	// The cell lock is held through both the store write and the local
	// broadcast so same-cell events reach every session in commit order.
	lock := s.locks.lockFor(cell.X, cell.Y)
	lock.Lock()

	storeCtx, cancel := context.WithTimeout(ctx, timeouts.StoreOp)
	err = s.cells.UpsertCell(storeCtx, cell)
	cancel()
	if err != nil {
		lock.Unlock()
		if refunded, refundErr := s.ledger.Refund(ctx, sess.participantID); refundErr != nil {
			log.Printf("canvas: refund for participant=%q failed: %v", sess.participantID, refundErr)
		} else {
			balance = refunded
		}
		log.Printf("canvas: upsert cell (%d,%d) for participant=%q: %v", cell.X, cell.Y, sess.participantID, err)
		_ = writeWSError(sess.peer, frame.RequestID, apperrors.CodeStorageUnavailable, "placement not stored", nil)
		s.pushQuotaTo(sess.participantID, balance)
		return
	}

	s.publishLocal(cell)
	lock.Unlock()

	s.pushQuotaTo(sess.participantID, balance)
	if balance == 0 {
		s.pushExhaustedTo(sess.participantID)
	}

	go s.bridge.publish(cell)
}

// rejectPlacement reports a failed placement to the placing session only.
// Other sessions never observe rejected placements.
func (s *Server) rejectPlacement(sess *wsSession, requestID string, err error) {
	code := apperrors.CodeOf(err)
	message := "placement rejected"
	var details map[string]string
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		details = domainErr.Metadata
	}
	_ = writeWSError(sess.peer, requestID, code, message, details)
	if code == apperrors.CodeQuotaExhausted {
		_ = sess.peer.writeFrame(wsFrame{
			Type:    "canvas.exhausted",
			Payload: mustJSON(exhaustedPayload{Exhausted: true}),
		})
	}
}

// publishLocal fans a committed cell out to every live session, the placer
// included.
func (s *Server) publishLocal(cell domain.Cell) {
	frame := wsFrame{
		Type: "canvas.cells",
		Payload: mustJSON(cellsPayload{
			Cells: []cellPayload{{
				X:       cell.X,
				Y:       cell.Y,
				Color:   cell.Color,
				OwnerID: cell.OwnerID,
			}},
		}),
	}
	for _, sess := range s.registry.all() {
		_ = sess.peer.writeFrame(frame)
	}
}

// pushQuotaTo delivers an updated balance to every session the participant
// holds.
func (s *Server) pushQuotaTo(participantID string, balance int) {
	frame := wsFrame{
		Type:    "canvas.quota",
		Payload: mustJSON(quotaPayload{Balance: balance}),
	}
	for _, sess := range s.registry.sessionsFor(participantID) {
		_ = sess.peer.writeFrame(frame)
	}
}

func (s *Server) pushExhaustedTo(participantID string) {
	frame := wsFrame{
		Type:    "canvas.exhausted",
		Payload: mustJSON(exhaustedPayload{Exhausted: true}),
	}
	for _, sess := range s.registry.sessionsFor(participantID) {
		_ = sess.peer.writeFrame(frame)
	}
}
