// Package main - nightwatch
// Headless caregiver bots: connect to a running server over WebSocket,
// start the night and answer awake kids, then report how the nights went.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/network"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
	"github.com/MRamiBalles/SleepRegression/server/internal/sim"
)

// Config for the watch
type Config struct {
	ServerURL   string
	NumClients  int
	Nights      int
	MinInterval time.Duration
	Policy      sim.Policy
}

// Stats tracks traffic and outcomes across all bots.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Rejected         int64
	Errors           int64

	mu       sync.Mutex
	finished map[string]sim.NightResult
}

func (s *Stats) recordNight(snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.finished[snap.SessionID]; seen {
		return
	}
	res := sim.NightResult{
		SessionID:       snap.SessionID,
		ParentSleepTime: snap.ParentSleepTime,
		TargetReached:   snap.TargetReached,
	}
	if snap.Rating != nil {
		res.Rating = snap.Rating.Tier
	}
	s.finished[snap.SessionID] = res
}

func (s *Stats) nights() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 1, "Number of concurrent bots")
	nights := flag.Int("nights", 1, "Nights to play before stopping")
	interval := flag.Duration("interval", 150*time.Millisecond, "Minimum delay between commands per bot")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	policyName := flag.String("policy", "greedy", "Caregiver policy: greedy or sleeper")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	appLogger := logger.New(logger.Options{Level: *logLevel})

	policy, ok := sim.PolicyByName(*policyName)
	if !ok {
		appLogger.Error("Unknown policy", "policy", *policyName)
		os.Exit(2)
	}

	cfg := Config{
		ServerURL:   *serverURL,
		NumClients:  *numClients,
		Nights:      *nights,
		MinInterval: *interval,
		Policy:      policy,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	appLogger.Info("Night watch starting", "url", cfg.ServerURL, "clients", cfg.NumClients, "nights", cfg.Nights)
	stats := runWatch(ctx, cancel, cfg, appLogger)
	printResults(stats)
}

func runWatch(ctx context.Context, cancel context.CancelFunc, cfg Config, log *logger.Logger) *Stats {
	stats := &Stats{finished: make(map[string]sim.NightResult)}

	var wg sync.WaitGroup
	for i := 0; i < cfg.NumClients; i++ {
		wg.Add(1)
		go func(botID int) {
			defer wg.Done()
			runBot(ctx, cancel, botID, cfg, stats, log.With("bot", botID))
		}(i)

		// Stagger bot starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	wg.Wait()
	return stats
}

// runBot plays until enough nights have completed. Bot 0 owns the session
// lifecycle (start, restart); every bot answers kids.
func runBot(ctx context.Context, cancel context.CancelFunc, botID int, cfg Config, stats *Stats, log *logger.Logger) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		log.Error("Connection failed", "err", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var lastSent time.Time
	send := func(cmd network.Command) {
		if time.Since(lastSent) < cfg.MinInterval {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(cmd); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			return
		}
		lastSent = time.Now()
		atomic.AddInt64(&stats.MessagesSent, 1)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Connection lost", "err", err)
				atomic.AddInt64(&stats.Errors, 1)
			}
			return
		}

		// The server coalesces queued messages, one JSON document per line.
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var msg network.InboundMessage
			if err := dec.Decode(&msg); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				break
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)

			switch msg.Type {
			case network.MsgTypeError:
				atomic.AddInt64(&stats.Rejected, 1)
			case network.MsgTypeState:
				var snap engine.Snapshot
				if err := json.Unmarshal(msg.Payload, &snap); err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					continue
				}
				react(snap, botID, cfg, stats, send, cancel, log)
			}
		}
	}
}

func react(snap engine.Snapshot, botID int, cfg Config, stats *Stats, send func(network.Command), cancel context.CancelFunc, log *logger.Logger) {
	switch snap.Status {
	case engine.StatusIdle, engine.StatusPaused:
		if botID == 0 {
			running := true
			send(network.Command{Type: network.CmdSetRunning, Running: &running})
		}
	case engine.StatusComplete:
		stats.recordNight(snap)
		log.Info("Night over", "session", snap.SessionID, "sleep", snap.ParentSleepTime)
		if stats.nights() >= cfg.Nights {
			cancel()
			return
		}
		if botID == 0 {
			send(network.Command{Type: network.CmdRestart})
		}
	case engine.StatusRunning:
		if room, ok := cfg.Policy.Choose(snap); ok {
			send(network.Command{Type: network.CmdRoomAction, Room: string(room)})
		}
	}
}

func printResults(stats *Stats) {
	stats.mu.Lock()
	results := make([]sim.NightResult, 0, len(stats.finished))
	for _, r := range stats.finished {
		results = append(results, r)
	}
	stats.mu.Unlock()

	out := map[string]interface{}{
		"messages_sent":     atomic.LoadInt64(&stats.MessagesSent),
		"messages_received": atomic.LoadInt64(&stats.MessagesReceived),
		"rejected":          atomic.LoadInt64(&stats.Rejected),
		"errors":            atomic.LoadInt64(&stats.Errors),
		"summary":           sim.Summarize(results),
	}

	jsonData, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(jsonData))
}
