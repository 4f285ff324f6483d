package station

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stationidle.ai/internal/protocol"
)

type cmdReq struct {
	Cmd  Command
	Resp chan CommandResult
}

type JoinRequest struct {
	ClientName string
	Out        chan []byte
	Resp       chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	State   protocol.StateMsg
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

type stateReq struct {
	Resp chan protocol.StateMsg
}

type eventsReq struct {
	SinceCursor uint64
	Limit       int
	Resp        chan eventsResp
}

type eventsResp struct {
	Items      []EventItem
	NextCursor uint64
}

func (s *Station) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			s.handleJoin(req)
		case id := <-s.leave:
			delete(s.clients, id)
		case req := <-s.cmds:
			res := s.Apply(req.Cmd)
			select {
			case req.Resp <- res:
			default:
			}
		case req := <-s.stateReq:
			select {
			case req.Resp <- s.State():
			default:
			}
		case req := <-s.eventsReq:
			items, next := s.EventsAfter(req.SinceCursor, req.Limit)
			select {
			case req.Resp <- eventsResp{Items: items, NextCursor: next}:
			default:
			}
		case req := <-s.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			s.step(s.tick.Load())
			s.handleAdminSnapshotRequests(pendingAdmin)
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (s *Station) Stop() { close(s.stop) }

func (s *Station) handleJoin(req JoinRequest) {
	sessionID := uuid.NewString()
	if req.Out != nil {
		s.clients[sessionID] = &clientState{Name: req.ClientName, Out: req.Out}
	}
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- JoinResponse{Welcome: s.Welcome(sessionID), State: s.State()}:
	default:
	}
}

// Join registers a client whose out channel receives every STATE frame.
func (s *Station) Join(ctx context.Context, clientName string, out chan []byte) (JoinResponse, error) {
	resp := make(chan JoinResponse, 1)
	select {
	case s.join <- JoinRequest{ClientName: clientName, Out: out, Resp: resp}:
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
}

func (s *Station) Leave(sessionID string) {
	select {
	case s.leave <- sessionID:
	default:
	}
}

// Submit hands cmd to the loop goroutine and waits for its result.
func (s *Station) Submit(ctx context.Context, cmd Command) (CommandResult, error) {
	resp := make(chan CommandResult, 1)
	select {
	case s.cmds <- cmdReq{Cmd: cmd, Resp: resp}:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// RequestState returns a STATE view built on the loop goroutine.
func (s *Station) RequestState(ctx context.Context) (protocol.StateMsg, error) {
	resp := make(chan protocol.StateMsg, 1)
	select {
	case s.stateReq <- stateReq{Resp: resp}:
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	}
}

func (s *Station) RequestEventsAfter(ctx context.Context, sinceCursor uint64, limit int) ([]EventItem, uint64, error) {
	req := eventsReq{SinceCursor: sinceCursor, Limit: limit, Resp: make(chan eventsResp, 1)}
	select {
	case s.eventsReq <- req:
	case <-ctx.Done():
		return nil, sinceCursor, ctx.Err()
	}
	select {
	case r := <-req.Resp:
		return r.Items, r.NextCursor, nil
	case <-ctx.Done():
		return nil, sinceCursor, ctx.Err()
	}
}

// RequestSnapshot asks the loop goroutine to enqueue a snapshot after the
// next tick. It is safe to call from other goroutines (e.g. HTTP handlers).
func (s *Station) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if s == nil || s.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case s.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Station) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	snapTick := lastCompleted(s.tick.Load())

	errStr := ""
	if s.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case s.snapshotSink <- s.exportAt(snapTick, ReasonAdmin):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the loop.
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
