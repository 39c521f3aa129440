package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/jwt"
	"github.com/MrEthical07/agentAuth/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const magicCode = "123456"

// syntheticDriver accepts magicCode and mints a token for the user.
type syntheticDriver struct {
	issuer *jwt.Issuer
	tokens sync.Map
}

func (d *syntheticDriver) BeginFlow(ctx context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	return nil, tc.SendActivity(ctx, tc.Activity().Reply("sign in"))
}

func (d *syntheticDriver) ContinueFlow(_ context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	if tc.Activity().Text != magicCode {
		return nil, nil
	}
	tok, err := d.issuer.Issue(tc.UserID(), "api://loadtest")
	if err != nil {
		return nil, err
	}
	d.tokens.Store(tc.UserID(), tok)
	return &agentAuth.TokenResponse{Token: tok}, nil
}

func (d *syntheticDriver) GetUserToken(_ context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	tok, ok := d.tokens.Load(tc.UserID())
	if !ok {
		return nil, nil
	}
	return &agentAuth.TokenResponse{Token: tok.(string)}, nil
}

func (d *syntheticDriver) SignOut(_ context.Context, tc activity.TurnContext) error {
	d.tokens.Delete(tc.UserID())
	return nil
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users signing in")
		racers      = flag.Int("racers", 2, "concurrent Begin calls per user")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		wrongCodes  = flag.Int("wrong-codes", 1, "rejected codes sent before the valid one")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *racers <= 0 || *concurrency <= 0 || *wrongCodes < 0 {
		fmt.Fprintln(os.Stderr, "users, racers and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "signing key: %v\n", err)
		os.Exit(1)
	}
	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "agentauth-loadtest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issuer: %v\n", err)
		os.Exit(1)
	}

	cfg := agentAuth.DefaultConfig()
	cfg.Flow.MaxAttempts = *wrongCodes + 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	auth, err := agentAuth.New().
		WithConfig(cfg).
		WithStorage(storage.NewRedisStorage(client, storage.WithKeyPrefix(*prefix))).
		WithHandler(agentAuth.AuthHandler{ID: "loadtest", ConnectionName: "loadtest-conn"}, &syntheticDriver{issuer: issuer}).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}
	defer auth.Close()

	userIDs := make([]string, *users)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("user-%d", i)
	}

	beginStats, winners := runBeginPhase(ctx, auth, userIDs, *racers, *concurrency)
	continueStats := runContinuePhase(ctx, auth, userIDs, *wrongCodes, *concurrency)
	tokenStats := runTokenPhase(ctx, auth, userIDs, *concurrency)

	fmt.Println("---- results ----")
	printStats("begin", beginStats)
	printStats("continue", continueStats)
	printStats("get-token", tokenStats)

	snap := auth.MetricsSnapshot()
	fmt.Printf("begin winners=%d/%d conflicts=%d exhausted=%d\n",
		winners, len(userIDs),
		snap.Counters[agentAuth.MetricFlowConflict],
		snap.Counters[agentAuth.MetricConcurrentModification])
	if winners != int64(len(userIDs)) {
		os.Exit(1)
	}
}

func newTurn(userID, text string) *activity.Turn {
	return activity.NewTurn(&activity.Activity{
		Type:         activity.TypeMessage,
		ID:           uuid.NewString(),
		ChannelID:    "loadtest",
		From:         activity.ChannelAccount{ID: userID},
		Conversation: activity.ConversationAccount{ID: "conv-" + userID},
		Text:         text,
	}, nil)
}

// runBeginPhase races racers Begin calls per user. Exactly one per user
// should win.
func runBeginPhase(ctx context.Context, auth *agentAuth.Authorization, userIDs []string, racers, concurrency int) (phaseStats, int64) {
	var winners int64
	rec := newRecorder(len(userIDs) * racers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for _, userID := range userIDs {
		for r := 0; r < racers; r++ {
			g.Go(func() error {
				t0 := time.Now()
				_, err := auth.Begin(gctx, newTurn(userID, "hello"), "loadtest")
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
					rec.add(time.Since(t0), false)
				case errors.Is(err, agentAuth.ErrFlowAlreadyActive):
					rec.add(time.Since(t0), false)
				default:
					rec.add(time.Since(t0), true)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return rec.stats(time.Since(start)), winners
}

func runContinuePhase(ctx context.Context, auth *agentAuth.Authorization, userIDs []string, wrongCodes, concurrency int) phaseStats {
	rec := newRecorder(len(userIDs) * (wrongCodes + 1))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for _, userID := range userIDs {
		g.Go(func() error {
			for i := 0; i <= wrongCodes; i++ {
				code := "000000"
				if i == wrongCodes {
					code = magicCode
				}
				t0 := time.Now()
				resp, err := auth.ContinueFlow(gctx, newTurn(userID, code), "")
				failed := err != nil || (i == wrongCodes && !resp.Completed())
				rec.add(time.Since(t0), failed)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec.stats(time.Since(start))
}

func runTokenPhase(ctx context.Context, auth *agentAuth.Authorization, userIDs []string, concurrency int) phaseStats {
	rec := newRecorder(len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for _, userID := range userIDs {
		g.Go(func() error {
			t0 := time.Now()
			tok, err := auth.GetToken(gctx, newTurn(userID, "hi"), "loadtest")
			rec.add(time.Since(t0), err != nil || tok == nil)
			return nil
		})
	}
	_ = g.Wait()
	return rec.stats(time.Since(start))
}

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int64
}

func newRecorder(capacity int) *recorder {
	return &recorder{latencies: make([]time.Duration, 0, capacity)}
}

func (r *recorder) add(d time.Duration, failed bool) {
	if failed {
		atomic.AddInt64(&r.failures, 1)
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.mu.Unlock()
}

func (r *recorder) stats(total time.Duration) phaseStats {
	return computeStats(total, r.latencies, atomic.LoadInt64(&r.failures))
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
