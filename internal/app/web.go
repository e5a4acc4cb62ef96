// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/report"
	"github.com/relabs-tech/magcal/internal/store"
)

// latestResult tracks the retained calibration on TOPIC_MAG_CALIBRATION.
type latestResult struct {
	mu   sync.RWMutex
	res  Result
	have bool
}

func (l *latestResult) handle(_ mqtt.Client, msg mqtt.Message) {
	var res Result
	if err := json.Unmarshal(msg.Payload(), &res); err != nil {
		log.Printf("web: MQTT payload unmarshal error: %v", err)
		return
	}
	l.set(res)
}

func (l *latestResult) set(res Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.res, l.have = res, true
}

func (l *latestResult) get() (Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.res, l.have
}

// WebServer holds the HTTP routes of the calibration UI.
type WebServer struct {
	handler *CalibrationHandler
	latest  *latestResult
	db      *store.DB
}

// NewWebServer wires the routes around h. db may be nil.
func NewWebServer(h *CalibrationHandler, db *store.DB) *WebServer {
	return &WebServer{handler: h, latest: &latestResult{}, db: db}
}

// Routes registers the API on mux.
//
//	/ws/calibration                 interactive calibration
//	/api/calibration                latest result
//	/api/calibration/coverage.png   coverage of the current or last run
//	/api/calibration/residuals.png  residual histogram of the last completed run
//	/api/calibration/history        stored results (CAL_DB_PATH)
func (ws *WebServer) Routes(mux *http.ServeMux) {
	mux.Handle("/ws/calibration", ws.handler)
	mux.HandleFunc("/api/calibration", ws.serveLatest)
	mux.HandleFunc("/api/calibration/coverage.png", ws.serveCoverage)
	mux.HandleFunc("/api/calibration/residuals.png", ws.serveResiduals)
	mux.HandleFunc("/api/calibration/history", ws.serveHistory)
}

func (ws *WebServer) latestResult() (Result, bool) {
	mqttRes, haveMQTT := ws.latest.get()
	localRes, haveLocal := ws.handler.Latest()
	switch {
	case haveMQTT && haveLocal:
		if localRes.CalibrationAt.After(mqttRes.CalibrationAt) {
			return localRes, true
		}
		return mqttRes, true
	case haveLocal:
		return localRes, true
	}
	return mqttRes, haveMQTT
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (ws *WebServer) serveLatest(w http.ResponseWriter, r *http.Request) {
	res, ok := ws.latestResult()
	if !ok {
		http.Error(w, "no calibration yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, res)
}

func (ws *WebServer) serveCoverage(w http.ResponseWriter, r *http.Request) {
	cal := ws.handler.Current()
	if cal == nil {
		http.Error(w, "no calibration run yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := cal.RenderCoverage(w); err != nil {
		log.Printf("web: coverage render error: %v", err)
	}
}

func (ws *WebServer) serveResiduals(w http.ResponseWriter, r *http.Request) {
	res, samples, ok := ws.handler.LatestRun()
	if !ok {
		http.Error(w, "no completed calibration yet", http.StatusServiceUnavailable)
		return
	}
	p, err := report.ResidualHistogram(res.Calibration(), samples)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := report.WritePNG(w, p, 8, 5); err != nil {
		log.Printf("web: residual render error: %v", err)
	}
}

func (ws *WebServer) serveHistory(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		http.Error(w, "history database disabled", http.StatusNotFound)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		rec, err := ws.db.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(rec.Document)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := ws.db.List(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, recs)
}

// RunWeb serves the calibration UI and API on WEB_SERVER_PORT.
func RunWeb(configPath string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("web: config init failed: %w", err)
	}
	cfg := config.Get()

	client, err := ConnectMQTT(cfg, cfg.MQTTClientIDWeb)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	defer client.Disconnect(250)

	db, err := OpenHistory(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	src, closer, err := OpenSource(cfg, client)
	if err != nil {
		return err
	}
	defer closer.Close()

	handler := NewCalibrationHandler(src, cfg, db)
	defer handler.Close()
	server := NewWebServer(handler, db)

	token := client.Subscribe(cfg.TopicMagCalibration, 0, server.latest.handle)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("web: subscribe %s: %w", cfg.TopicMagCalibration, token.Error())
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicMagCalibration)

	mux := http.NewServeMux()
	server.Routes(mux)
	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
