package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/internal/stores"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of accounts to issue codes for")
		racers      = flag.Int("racers", 16, "concurrent redeemers per code")
		concurrency = flag.Int("concurrency", 64, "concurrent workers for the issue phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "otk-load", "token key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *racers <= 1 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "accounts and concurrency must be > 0, racers must be > 1")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	ledger, err := otpauth.NewLedger(stores.NewTokenStore(client, *prefix), otpauth.DefaultConfig().Tokens, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		os.Exit(1)
	}

	ids := make([]string, *accounts)
	for i := range ids {
		ids[i] = fmt.Sprintf("acct-%d", i)
	}

	codes, issueStats := runIssuePhase(ctx, ledger, ids, *concurrency)
	redeemStats, violations := runRedeemPhase(ctx, ledger, ids, codes, *racers)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("redeem", redeemStats)

	if violations > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d codes did not have exactly one winner\n", violations)
		os.Exit(1)
	}
	fmt.Println("ok: every code redeemed exactly once")
}

func runIssuePhase(ctx context.Context, ledger *otpauth.Ledger, ids []string, concurrency int) ([]string, phaseStats) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		codes     = make([]string, len(ids))
		latencies = make([]time.Duration, 0, len(ids))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(ids) {
					return
				}
				t0 := time.Now()
				tok, err := ledger.Issue(ctx, ids[i], otpauth.PurposeLoginOTP)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					codes[i] = tok.Code
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return codes, computeStats(time.Since(start), latencies, failures)
}

// runRedeemPhase releases racers goroutines per code at once and counts how
// many of them win. Any count other than one is a violation.
func runRedeemPhase(ctx context.Context, ledger *otpauth.Ledger, ids, codes []string, racers int) (phaseStats, int) {
	var (
		failures   int64
		violations int
		latencies  = make([]time.Duration, 0, len(ids)*racers)
		mu         sync.Mutex
	)

	start := time.Now()
	for i, id := range ids {
		if codes[i] == "" {
			continue
		}

		var (
			wg      sync.WaitGroup
			winners int64
			gate    = make(chan struct{})
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				ok, err := ledger.Redeem(ctx, id, otpauth.PurposeLoginOTP, codes[i])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				if ok {
					atomic.AddInt64(&winners, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		close(gate)
		wg.Wait()

		if winners != 1 {
			violations++
		}
	}
	return computeStats(time.Since(start), latencies, failures), violations
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
	return samples[(len(samples)-1)*p/100]
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
