package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/talimhq/talim/internal/playback"
	"github.com/talimhq/talim/internal/session"
	"github.com/talimhq/talim/pkg/audio"
	"github.com/talimhq/talim/pkg/types"
)

// recognizerSampleRate is the PCM rate the capture pipeline feeds the
// recognizer. Decoded browser audio is downsampled to it before forwarding.
const recognizerSampleRate = 16000

// outboundBuffer bounds how many undelivered events a slow client may
// accumulate before the connection is dropped.
const outboundBuffer = 256

// conn serves one WebSocket client. A connection owns at most one session
// engine, created by the open command; every later command is routed to it.
type conn struct {
	ws      *websocket.Conn
	manager *session.Manager
	logger  *slog.Logger

	decoder *audio.OpusDecoder

	outCh chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	engine *session.Engine

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, manager *session.Manager, logger *slog.Logger) (*conn, error) {
	dec, err := audio.NewOpusDecoder()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		ws:      ws,
		manager: manager,
		logger:  logger,
		decoder: dec,
		outCh:   make(chan []byte, outboundBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// serve runs the read loop until the client disconnects or the parent
// context is cancelled. It owns connection teardown.
func (c *conn) serve(parent context.Context) {
	defer c.close()

	go c.writePump()
	go func() {
		select {
		case <-parent.Done():
			c.close()
		case <-c.ctx.Done():
		}
	}()

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			if err := c.handleCommand(data); err != nil {
				c.logger.Warn("command rejected", "error", err)
				c.pushEvent(Event{Type: EvtError, Message: err.Error()})
			}
		case websocket.MessageBinary:
			c.handleAudio(data)
		}
	}
}

// writePump serializes all outbound frames onto the socket.
func (c *conn) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.outCh:
			if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) handleCommand(data []byte) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		return err
	}

	if cmd.Type == CmdOpen {
		return c.handleOpen(cmd)
	}

	eng := c.currentEngine()
	if eng == nil {
		return fmt.Errorf("gateway: %q before open", cmd.Type)
	}

	switch cmd.Type {
	case CmdStartCapture:
		return eng.StartCapture(c.ctx)
	case CmdStopCapture:
		eng.StopCapture(cmd.AutoSubmit)
	case CmdToggle:
		return eng.Toggle(c.ctx)
	case CmdSubmit:
		eng.Submit(session.TriggerManual)
	case CmdSubmitText:
		eng.SubmitText(cmd.Text)
	case CmdUnlockAudio:
		eng.UnlockAudio()
	case CmdCaptureFailure:
		eng.ReportCaptureFailure(cmd.Reason)
	case CmdClipEvent:
		eng.ClipEvent(cmd.ClipID, cmd.Event)
	default:
		return fmt.Errorf("gateway: unknown command %q", cmd.Type)
	}
	return nil
}

func (c *conn) handleOpen(cmd Command) error {
	c.mu.Lock()
	if c.engine != nil {
		c.mu.Unlock()
		return errors.New("gateway: session already open on this connection")
	}
	c.mu.Unlock()

	eng, err := c.manager.Open(c.ctx, session.OpenParams{
		SimulationName: cmd.Simulation,
		CourseID:       cmd.CourseID,
		UserID:         cmd.UserID,
	}, c.sessionEvents())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.engine = eng
	c.mu.Unlock()

	c.pushEvent(Event{Type: EvtOpened, ThreadID: eng.Info().ThreadID})
	eng.PresentOpening()
	return nil
}

func (c *conn) handleAudio(packet []byte) {
	eng := c.currentEngine()
	if eng == nil {
		return
	}
	pcm, err := c.decoder.Decode(packet)
	if err != nil {
		c.logger.Debug("opus packet dropped", "error", err)
		return
	}
	pcm = audio.ResampleMono16(pcm, audio.OpusSampleRate, recognizerSampleRate)
	if err := eng.PushFrame(pcm); err != nil {
		c.logger.Debug("audio frame dropped", "error", err)
	}
}

// sessionEvents bridges engine events onto the socket.
func (c *conn) sessionEvents() session.Events {
	return session.Events{
		OnState: func(snap session.Snapshot) {
			c.pushEvent(Event{
				Type:      EvtState,
				State:     snap.State.String(),
				Listening: snap.Listening,
				Busy:      snap.Busy,
				Terminal:  snap.Terminal,
			})
		},
		OnTranscript: func(display string) {
			c.pushEvent(Event{Type: EvtTranscript, Text: display})
		},
		OnLevel: func(level float64) {
			c.pushLevel(Event{Type: EvtLevel, Level: level})
		},
		OnComposing: func(active bool) {
			c.pushEvent(Event{Type: EvtComposing, Active: active})
		},
		OnReveal: func(prefix string) {
			c.pushEvent(Event{Type: EvtReveal, Text: prefix})
		},
		OnClip: func(clip *playback.Clip) {
			c.pushEvent(Event{
				Type:   EvtClip,
				ClipID: clip.ID(),
				Audio:  clip.Audio(),
				MIME:   clip.MIME(),
			})
		},
		OnPlay: func(clip *playback.Clip) {
			c.pushEvent(Event{Type: EvtPlay, ClipID: clip.ID()})
		},
		OnCleared: func(fade time.Duration) {
			c.pushEvent(Event{Type: EvtCleared, FadeMS: int(fade / time.Millisecond)})
		},
		OnWarning: func(code, message string) {
			c.pushEvent(Event{Type: EvtWarning, Code: code, Message: message})
		},
		OnEnded: func(end session.Ending) {
			c.pushEvent(Event{
				Type:         EvtEnded,
				Reply:        end.Reply,
				Score:        scoreWire(end.Score),
				Redirect:     redirectWire(end.Redirect),
				AutoNavigate: end.AutoNavigate,
			})
		},
		OnRedirect: func(target session.Redirect) {
			c.pushEvent(Event{Type: EvtRedirect, Redirect: redirectWire(&target)})
		},
	}
}

// pushEvent queues one event for delivery. A client that cannot keep up with
// the buffered backlog is disconnected rather than blocking the engine.
func (c *conn) pushEvent(evt Event) {
	data, err := EncodeEvent(evt)
	if err != nil {
		c.logger.Error("event encoding failed", "type", evt.Type, "error", err)
		return
	}
	select {
	case c.outCh <- data:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("client too slow, dropping connection", "type", evt.Type)
		c.close()
	}
}

// pushLevel queues a level meter event, silently dropped under backpressure.
// Meter readings are superseded tens of times per second.
func (c *conn) pushLevel(evt Event) {
	data, err := EncodeEvent(evt)
	if err != nil {
		return
	}
	select {
	case c.outCh <- data:
	default:
	}
}

func (c *conn) currentEngine() *session.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if eng := c.currentEngine(); eng != nil {
			c.manager.Close(eng.Info().ThreadID)
		}
		c.ws.Close(websocket.StatusNormalClosure, "")
	})
}

func scoreWire(rec types.ScoreRecord) *ScoreWire {
	if rec.IsNull() {
		return nil
	}
	w := &ScoreWire{Items: make([]ScoreItemWire, 0, len(rec.Items))}
	for _, it := range rec.Items {
		w.Items = append(w.Items, ScoreItemWire{Label: it.Label, Points: it.Points})
	}
	if rec.Total != nil {
		w.Total = *rec.Total
	}
	return w
}

func redirectWire(r *session.Redirect) *RedirectWire {
	if r == nil {
		return nil
	}
	return &RedirectWire{
		ThreadID:   r.ThreadID,
		CourseID:   r.CourseID,
		Simulation: r.SimulationName,
	}
}
