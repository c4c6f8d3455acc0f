// cmd/sensorsim/main.go

// sensorsim serves a synthetic sensor API with the same shape as the
// public endpoint, so the service can be exercised locally: point
// AQSENTRY_SENSOR_API_BASE at it and watch thresholds fire. Flags tune
// the PM2.5 curve and inject the failure modes the acquisition layer
// has to survive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"log/slog"
)

type options struct {
	listen   string
	basePM   float64
	swingPM  float64
	period   time.Duration
	jitter   float64
	staleIDs string
	failIDs  string
	junkIDs  string
}

type simulator struct {
	opts    options
	log     *slog.Logger
	started time.Time
	serves  atomic.Int64
}

// subsensorDoc mirrors one entry of the sensor API result list. Stats is
// a JSON document nested inside the outer one as a string.
type subsensorDoc struct {
	ID       int     `json:"ID"`
	Label    string  `json:"Label"`
	Lat      float64 `json:"Lat"`
	Lon      float64 `json:"Lon"`
	LastSeen int64   `json:"LastSeen"`
	Stats    string  `json:"Stats"`
}

type responseDoc struct {
	Results []subsensorDoc `json:"results"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var opts options
	flag.StringVar(&opts.listen, "listen", ":9090", "listen address")
	flag.Float64Var(&opts.basePM, "pm", 10, "baseline PM2.5 concentration")
	flag.Float64Var(&opts.swingPM, "swing", 12, "sinusoidal swing around the baseline")
	flag.DurationVar(&opts.period, "period", 20*time.Minute, "length of one swing cycle")
	flag.Float64Var(&opts.jitter, "jitter", 0.8, "random noise added to each sample")
	flag.StringVar(&opts.staleIDs, "stale", "", "comma-separated sensor ids that report hours-old data")
	flag.StringVar(&opts.failIDs, "fail", "", "comma-separated sensor ids that answer 500")
	flag.StringVar(&opts.junkIDs, "junk", "", "comma-separated sensor ids that answer undecodable bodies")
	flag.Parse()

	sim := &simulator{opts: opts, log: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/json", sim.handleShow)
	server := &http.Server{
		Addr:              opts.listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("sensorsim_listening",
		slog.String("address", opts.listen),
		slog.Float64("base_pm", opts.basePM),
		slog.Float64("swing_pm", opts.swingPM),
		slog.String("period", opts.period.String()),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("sensorsim_server_error", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("sensorsim_stopped", slog.Int64("requests_served", sim.serves.Load()))
}

func (s *simulator) handleShow(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("show")
	if id == "" {
		http.Error(w, "missing show parameter", http.StatusBadRequest)
		return
	}
	s.serves.Add(1)

	if listed(s.opts.failIDs, id) {
		s.log.Info("sensorsim_forced_failure", slog.String("sensor_id", id))
		http.Error(w, "synthetic upstream failure", http.StatusInternalServerError)
		return
	}
	if listed(s.opts.junkIDs, id) {
		s.log.Info("sensorsim_forced_junk", slog.String("sensor_id", id))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("<html>definitely not json</html>"))
		return
	}

	lastSeen := time.Now()
	if listed(s.opts.staleIDs, id) {
		lastSeen = lastSeen.Add(-3 * time.Hour)
	}

	realtime := s.sample(0)
	avg10 := s.sample(-5 * time.Minute)
	doc := responseDoc{Results: []subsensorDoc{
		s.subsensor(id, 0, " A", realtime, avg10, lastSeen),
		s.subsensor(id, 1, " B", realtime*1.04, avg10*1.03, lastSeen),
	}}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		s.log.Error("sensorsim_encode_failed", slog.Any("err", err))
		return
	}
	s.log.Debug("sensorsim_served",
		slog.String("sensor_id", id),
		slog.Float64("realtime_pm", realtime),
		slog.Float64("avg10_pm", avg10),
	)
}

// sample evaluates the PM curve at now+offset: a sine swing over the
// configured period plus uniform jitter, floored at zero.
func (s *simulator) sample(offset time.Duration) float64 {
	elapsed := time.Since(s.started) + offset
	phase := 2 * math.Pi * float64(elapsed) / float64(s.opts.period)
	v := s.opts.basePM + s.opts.swingPM*math.Sin(phase)
	v += (rand.Float64()*2 - 1) * s.opts.jitter
	if v < 0 {
		return 0
	}
	return v
}

func (s *simulator) subsensor(id string, idx int, suffix string, realtime, avg10 float64, lastSeen time.Time) subsensorDoc {
	stats, _ := json.Marshal(map[string]float64{
		"v":  round1(realtime),
		"v1": round1(avg10),
	})
	numeric, _ := strconv.Atoi(id)
	return subsensorDoc{
		ID:       numeric*10 + idx,
		Label:    "sim-" + id + suffix,
		Lat:      47.61,
		Lon:      -122.33,
		LastSeen: lastSeen.Unix(),
		Stats:    string(stats),
	}
}

func listed(csv, id string) bool {
	for _, candidate := range splitCSV(csv) {
		if candidate == id {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
