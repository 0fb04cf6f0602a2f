package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/keys"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadtestParams struct {
	principals  int
	concurrency int
	ops         int
	redisAddr   string
}

func newLoadtestCmd() *cobra.Command {
	p := loadtestParams{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure authenticate and refresh redeem throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.principals <= 0 || p.concurrency <= 0 || p.ops <= 0 {
				return errors.New("principals, concurrency, and ops must be > 0")
			}
			if p.redisAddr == "" {
				p.redisAddr = envOr("REDIS_ADDR", "")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().IntVar(&p.principals, "principals", 10000, "number of principals to seed")
	cmd.Flags().IntVar(&p.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&p.ops, "ops", 200000, "operations per phase (authenticate + redeem)")
	cmd.Flags().StringVar(&p.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

type seeded struct {
	access  string
	refresh string
}

func runLoadtest(ctx context.Context, out io.Writer, p loadtestParams) error {
	addr := p.redisAddr
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	secret, err := jwt.GenerateSecret(jwt.HS256)
	if err != nil {
		return err
	}
	cfg := jwtauth.DefaultConfig()
	cfg.JWT.Keys = map[jwt.Algorithm]jwtauth.KeyRef{jwt.HS256: {Sign: "loadtest"}}
	cfg.Flood.Enabled = false
	cfg.Refresh.RedisPrefix = "jwtauth-loadtest"

	dir := principal.NewStatic()
	for i := 0; i < p.principals; i++ {
		dir.Put(principal.Principal{ID: strconv.Itoa(i + 1), Active: true})
	}

	engine, err := jwtauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithKeyProvider(keys.NewStatic(map[string][]byte{"loadtest": secret})).
		WithPrincipalDirectory(dir).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]seeded, p.principals)
	fmt.Fprintf(out, "seeding %d principals...\n", p.principals)
	startSeed := time.Now()
	for i := range states {
		pair, err := engine.IssuePair(ctx, principal.Principal{ID: strconv.Itoa(i + 1), Active: true})
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		states[i] = seeded{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	results := []phaseResult{
		phase{name: "authenticate", ops: p.ops, concurrency: p.concurrency, do: func(r *rand.Rand) error {
			_, err := engine.AuthenticateToken(ctx, states[r.Intn(len(states))].access)
			return err
		}}.run(),
		phase{name: "redeem", ops: p.ops, concurrency: p.concurrency, do: func(r *rand.Rand) error {
			_, err := engine.Redeem(ctx, states[r.Intn(len(states))].refresh)
			return err
		}}.run(),
	}
	return writeResults(out, results)
}

// phase drives one engine operation from a fixed pool of workers.
type phase struct {
	name        string
	ops         int
	concurrency int
	do          func(r *rand.Rand) error
}

func (ph phase) run() phaseResult {
	res := phaseResult{name: ph.name, latencies: make([]time.Duration, ph.ops)}
	var (
		wg     sync.WaitGroup
		next   atomic.Int64
		failed atomic.Int64
	)

	start := time.Now()
	for w := 0; w < ph.concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for {
				i := next.Add(1) - 1
				if i >= int64(ph.ops) {
					return
				}
				began := time.Now()
				if err := ph.do(r); err != nil {
					failed.Add(1)
				}
				// each slot is owned by the worker that claimed i
				res.latencies[i] = time.Since(began)
			}
		}(start.UnixNano() + int64(w))
	}
	wg.Wait()

	res.elapsed = time.Since(start)
	res.failures = failed.Load()
	sort.Slice(res.latencies, func(i, j int) bool { return res.latencies[i] < res.latencies[j] })
	return res
}

type phaseResult struct {
	name      string
	elapsed   time.Duration
	failures  int64
	latencies []time.Duration // ascending
}

// quantile returns the nearest-rank latency for q in [0, 1].
func (r phaseResult) quantile(q float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	switch {
	case q <= 0:
		return r.latencies[0]
	case q >= 1:
		return r.latencies[len(r.latencies)-1]
	}
	return r.latencies[int(q*float64(len(r.latencies)-1))]
}

func (r phaseResult) throughput() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(len(r.latencies)) / r.elapsed.Seconds()
}

func writeResults(out io.Writer, results []phaseResult) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "phase\tops\tfailures\telapsed\tops/sec\tp50\tp95\tp99")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\n",
			r.name,
			len(r.latencies),
			r.failures,
			r.elapsed.Round(time.Millisecond),
			r.throughput(),
			r.quantile(0.50).Round(time.Microsecond),
			r.quantile(0.95).Round(time.Microsecond),
			r.quantile(0.99).Round(time.Microsecond),
		)
	}
	return tw.Flush()
}
