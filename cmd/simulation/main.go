// Simulation drives the full discipline lifecycle against a running server:
// authenticate, create a strategy, then repeatedly work through the
// checklist gate, open a trade and close it with a random outcome until the
// risk profile locks the account. Per-route latencies are reported at the end.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/ksred/tradeguard-api/internal/auth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxTrades     = 25
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"BTCUSDT", "ETHUSDT", "EURUSD", "GBPUSD", "XAUUSD"}
	sides   = []string{"BUY", "SELL"}
	results = []string{"WIN", "LOSS", "LOSS", "BREAKEVEN"} // loss-heavy to exercise the lock
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
}

// calculate computes min, max, mean, median and 95th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p95 = rs.durations[p95idx]

	return
}

// apiEnvelope mirrors the server's response wrapper
type apiEnvelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"strategy":  {name: "Create Strategy"},
			"profile":   {name: "Get Risk Profile"},
			"session":   {name: "Select Strategy"},
			"toggle":    {name: "Toggle Item"},
			"authorize": {name: "Authorize Open"},
			"open":      {name: "Open Trade"},
			"close":     {name: "Close Trade"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) authenticate() (string, error) {
	env, err := sc.do("auth", http.MethodPost, "/api/v1/auth/token", map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	})
	if err != nil {
		return "", err
	}

	token, ok := env.Data["jwt_token"].(string)
	if !ok {
		return "", fmt.Errorf("token missing from auth response")
	}
	return token, nil
}

// do performs a request, records its latency under the given stats key and
// decodes the response envelope. A policy rejection is returned as the
// envelope with Success=false, not as an error.
func (sc *simulationClient) do(statKey, method, path string, body interface{}) (*apiEnvelope, error) {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[statKey].failures++
		return nil, err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		sc.stats[statKey].failures++
		return nil, err
	}
	if !env.Success {
		sc.stats[statKey].failures++
	}
	return &env, nil
}

func (sc *simulationClient) createStrategy() (string, error) {
	env, err := sc.do("strategy", http.MethodPost, "/api/v1/strategies", map[string]interface{}{
		"name":        "London Breakout",
		"description": "Breakout of the first hour range during the London session",
		"checklist_items": []string{
			"Higher timeframe trend confirmed",
			"Stop loss placed below structure",
			"Risk per trade is at most 1%",
		},
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("create strategy rejected: %s", env.Error.Message)
	}
	return env.Data["strategy_id"].(string), nil
}

// runTrade walks one full gate-to-close cycle. It returns false once the
// server refuses the cycle because the account is locked.
func (sc *simulationClient) runTrade(strategyID string) (bool, error) {
	// Fresh checklist session
	env, err := sc.do("session", http.MethodPost, "/api/v1/checklist/sessions", map[string]string{
		"strategy_id": strategyID,
	})
	if err != nil {
		return false, err
	}
	if !env.Success {
		return false, fmt.Errorf("select strategy rejected: %s", env.Error.Message)
	}
	sessionID := env.Data["session_id"].(string)
	items, _ := env.Data["items"].([]interface{})

	// Acknowledge every rule
	for i := range items {
		path := fmt.Sprintf("/api/v1/checklist/sessions/%s/items/%d/toggle", sessionID, i)
		if _, err := sc.do("toggle", http.MethodPost, path, nil); err != nil {
			return false, err
		}
	}

	// Exchange the completed checklist for an entry token
	env, err = sc.do("authorize", http.MethodPost,
		fmt.Sprintf("/api/v1/checklist/sessions/%s/authorize", sessionID), nil)
	if err != nil {
		return false, err
	}
	if !env.Success {
		if env.Error.Code == "RISK_LOCKED" {
			log.Info().Msg("authorization refused: account is locked")
			return false, nil
		}
		return false, fmt.Errorf("authorize rejected: %s", env.Error.Message)
	}
	token := env.Data["authorization_token"].(string)

	// Open
	env, err = sc.do("open", http.MethodPost, "/api/v1/trades", map[string]string{
		"strategy_id":         strategyID,
		"authorization_token": token,
		"symbol":              symbols[rand.Intn(len(symbols))],
		"side":                sides[rand.Intn(len(sides))],
	})
	if err != nil {
		return false, err
	}
	if !env.Success {
		return false, fmt.Errorf("open trade rejected: %s", env.Error.Message)
	}
	tradeID := env.Data["trade_id"].(string)

	// Close with a random outcome
	result := results[rand.Intn(len(results))]
	pnl := 20 + rand.Float64()*80
	env, err = sc.do("close", http.MethodPost,
		fmt.Sprintf("/api/v1/trades/%s/close", tradeID), map[string]interface{}{
			"result": result,
			"pnl":    pnl,
			"notes":  "simulation trade",
		})
	if err != nil {
		return false, err
	}
	if !env.Success {
		return false, fmt.Errorf("close trade rejected: %s", env.Error.Message)
	}

	log.Info().
		Str("trade_id", tradeID).
		Str("result", result).
		Msg("trade cycle completed")

	return true, nil
}

func (sc *simulationClient) logProfile() {
	env, err := sc.do("profile", http.MethodGet, "/api/v1/risk/profile", nil)
	if err != nil || !env.Success {
		log.Error().Err(err).Msg("failed to fetch risk profile")
		return
	}
	log.Info().
		Interface("profile", env.Data).
		Msg("final risk profile")
}

func (sc *simulationClient) printStats() {
	fmt.Println("\nRoute performance:")
	fmt.Printf("%-20s %8s %10s %10s %10s %10s %10s %9s\n",
		"Route", "Calls", "Min", "Max", "Mean", "Median", "P95", "Failures")
	for _, key := range []string{"auth", "strategy", "profile", "session", "toggle", "authorize", "open", "close"} {
		rs := sc.stats[key]
		min, max, mean, median, p95 := rs.calculate()
		fmt.Printf("%-20s %8d %10s %10s %10s %10s %10s %9d\n",
			rs.name, len(rs.durations), min, max, mean, median, p95, rs.failures)
	}
}

func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	strategyID, err := sc.createStrategy()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create strategy")
	}
	log.Info().Str("strategy_id", strategyID).Msg("strategy created")

	for i := 0; i < maxTrades; i++ {
		ok, err := sc.runTrade(strategyID)
		if err != nil {
			log.Error().Err(err).Int("cycle", i).Msg("trade cycle failed")
			break
		}
		if !ok {
			log.Info().Int("completed_cycles", i).Msg("account locked, stopping simulation")
			break
		}
	}

	sc.logProfile()
	sc.printStats()
}
