package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/draftkit/teamauction/internal/auction"
	"github.com/draftkit/teamauction/internal/auction/events"
)

// ClientCommand is the inbound message a connected client sends over the
// socket. Fields beyond Action are action-specific.
type ClientCommand struct {
	Action string `json:"action"`
	Team   string `json:"team,omitempty"`
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

const (
	ActionStart    = "start"
	ActionNominate = "nominate"
	ActionBid      = "bid"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionCancel   = "cancel"
	ActionSync     = "sync"

	commandTimeout = 10 * time.Second
)

// handleClientMessage decodes and executes a client command. Successful
// commands answer through the room broadcast; rejections go back only to the
// issuing connection, with the authoritative snapshot attached for resync.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Err(err).
			Msg("unreadable client message")
		c.reject("BadRequest", "message is not a valid command", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	eng := c.Manager.engine
	var err error
	switch cmd.Action {
	case ActionStart:
		_, err = eng.Start(ctx, c.AuctionID, c.UserID)
	case ActionNominate:
		_, err = eng.Nominate(ctx, c.AuctionID, c.UserID, cmd.Team, cmd.Amount)
	case ActionBid:
		_, err = eng.Bid(ctx, c.AuctionID, c.UserID, cmd.Team, cmd.Amount)
	case ActionPause:
		_, err = eng.Pause(ctx, c.AuctionID, c.UserID, cmd.Reason)
	case ActionResume:
		_, err = eng.Resume(ctx, c.AuctionID, c.UserID)
	case ActionCancel:
		_, err = eng.Cancel(ctx, c.AuctionID, c.UserID)
	case ActionSync:
		snap, serr := eng.Snapshot(c.AuctionID)
		if serr != nil {
			err = serr
			break
		}
		c.sendEvent(events.New(c.AuctionID, events.EventTypeSnapshot, snap))
		return
	default:
		c.reject("BadRequest", "unknown action "+cmd.Action, nil)
		return
	}

	if err == nil {
		return
	}
	if kind := auction.KindOf(err); kind != "" {
		c.reject(string(kind), err.Error(), auction.SnapshotOf(err))
		return
	}
	log.Error().
		Err(err).
		Str("connection_id", c.ID).
		Str("action", cmd.Action).
		Msg("command failed")
	c.reject("Internal", "command could not be processed", nil)
}

func (c *Connection) reject(kind, message string, snap *auction.Snapshot) {
	payload := events.CommandRejectedPayload{Kind: kind, Message: message}
	if snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			payload.Snapshot = data
		}
	}
	c.sendEvent(events.New(c.AuctionID, events.EventTypeCommandRejected, payload))
}
