// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/magcal"
	"github.com/relabs-tech/magcal/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// ErrCalibrationBusy is reported when a second run is started on a source
// that is already collecting.
var ErrCalibrationBusy = errors.New("calibration already running")

// WSMessage is sent by the client.
type WSMessage struct {
	Action string `json:"action"` // start, stop, cancel
}

// WSResponse is sent by the server.
type WSResponse struct {
	Type     string    `json:"type"` // progress, complete, error
	Progress *Progress `json:"progress,omitempty"`
	Results  *Result   `json:"results,omitempty"`
	File     string    `json:"file,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// CalibrationHandler runs interactive calibrations over a websocket. All
// connections share one sample source; only one run collects at a time.
type CalibrationHandler struct {
	src *SharedSource
	cfg *config.Config
	db  *store.DB

	mu        sync.Mutex
	running   bool
	current   *Calibrator
	latest    *Result
	latestRun *Calibrator // produced latest
}

// NewCalibrationHandler serves calibrations fed from src. db may be nil.
func NewCalibrationHandler(src imu.MagSource, cfg *config.Config, db *store.DB) *CalibrationHandler {
	return &CalibrationHandler{src: NewSharedSource(src), cfg: cfg, db: db}
}

// Current returns the calibrator of the running or last run, if any.
func (h *CalibrationHandler) Current() *Calibrator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Latest returns the last result completed through this handler.
func (h *CalibrationHandler) Latest() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Result{}, false
	}
	return *h.latest, true
}

// LatestRun returns the last completed result together with the samples it
// was fitted on. Later runs that fail or are cancelled do not replace it.
func (h *CalibrationHandler) LatestRun() (Result, []magcal.Sample, bool) {
	h.mu.Lock()
	res, cal := h.latest, h.latestRun
	h.mu.Unlock()
	if res == nil || cal == nil {
		return Result{}, nil, false
	}
	return *res, cal.Samples(), true
}

func (h *CalibrationHandler) acquire() (*Calibrator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil, ErrCalibrationBusy
	}
	h.running = true
	h.current = NewCalibrator(h.cfg.CalSource, h.cfg)
	return h.current, nil
}

func (h *CalibrationHandler) release(cal *Calibrator, res *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	if res != nil {
		h.latest = res
		h.latestRun = cal
	}
}

// wsSession is one websocket connection.
type wsSession struct {
	h    *CalibrationHandler
	conn *websocket.Conn

	writeMu sync.Mutex

	// set while a run is active
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

func (s *wsSession) send(resp WSResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func (s *wsSession) sendError(message string) {
	s.send(WSResponse{Type: "error", Message: message})
}

// ServeHTTP handles the WebSocket connection for calibration.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s := &wsSession{h: h, conn: conn}
	defer s.abort()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("calibration: websocket read error: %v", err)
			}
			return
		}

		switch msg.Action {
		case "start":
			s.start()
		case "stop":
			s.stop()
		case "cancel":
			log.Printf("calibration: cancelled by user")
			s.abort()
			return
		default:
			s.sendError("unknown action " + msg.Action)
		}
	}
}

func (s *wsSession) start() {
	if s.running() {
		s.sendError(ErrCalibrationBusy.Error())
		return
	}
	cal, err := s.h.acquire()
	if err != nil {
		s.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.h.cfg.CalDuration())
	s.cancel = cancel
	s.cancelled = false
	s.done = make(chan struct{})
	log.Printf("calibration: started on %s", cal.Source())

	go s.run(ctx, cal, s.done)
}

func (s *wsSession) run(ctx context.Context, cal *Calibrator, done chan struct{}) {
	defer close(done)
	var res *Result
	defer func() { s.h.release(cal, res) }()

	err := Collect(ctx, s.h.src, cal, s.h.cfg.CalProgressEvery, func(p Progress) {
		s.send(WSResponse{Type: "progress", Progress: &p})
	})
	if s.isCancelled() {
		return
	}
	if err != nil {
		s.sendError(err.Error())
		return
	}

	r, err := cal.Finish()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	out, err := PersistResult(s.h.cfg, s.h.db, r, cal.Samples())
	if err != nil {
		s.sendError(err.Error())
		return
	}
	res = &out.Result
	p := cal.Progress()
	s.send(WSResponse{Type: "complete", Progress: &p, Results: res, File: out.File})
}

func (s *wsSession) isCancelled() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.cancelled
}

// running reports whether this connection has a run in progress.
func (s *wsSession) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// stop ends collection and lets the run finish with a result.
func (s *wsSession) stop() {
	if !s.running() {
		s.sendError("no calibration running")
		return
	}
	s.cancel()
}

// abort ends collection without producing a result.
func (s *wsSession) abort() {
	if s.cancel == nil {
		return
	}
	s.writeMu.Lock()
	s.cancelled = true
	s.writeMu.Unlock()
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Close stops reading the shared source.
func (h *CalibrationHandler) Close() error {
	return h.src.Close()
}
