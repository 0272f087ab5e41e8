// Command perf-regression compares two `go test -bench` outputs for the
// otpauth hot paths and fails when a candidate run is slower than the
// baseline beyond each check's limit.
//
//	go test -run '^$' -bench . -count 6 ./... > base.txt
//	go test -run '^$' -bench . -count 6 ./... > cand.txt
//	go run ./security/cmd/perf-regression -baseline base.txt -candidate cand.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// check is one tracked benchmark unit. A zero Limit uses the -threshold flag.
type check struct {
	Group     string
	Benchmark string
	Unit      string
	Limit     float64
}

// checks covers the ledger backends, session authorization, the full login
// and metric export. Login time is argon2 bound and only allocations are
// compared; a cost change there belongs in Config.Password, not here.
var checks = []check{
	{Group: "ledger", Benchmark: "BenchmarkLedgerIssueRedeem", Unit: "ns/op"},
	{Group: "ledger", Benchmark: "BenchmarkLedgerIssueRedeem", Unit: "allocs/op", Limit: 0.10},
	{Group: "ledger", Benchmark: "BenchmarkLedgerIssueRedeemRedis", Unit: "ns/op"},
	{Group: "session", Benchmark: "BenchmarkAuthorize", Unit: "ns/op"},
	{Group: "session", Benchmark: "BenchmarkAuthorize", Unit: "allocs/op", Limit: 0.10},
	{Group: "login", Benchmark: "BenchmarkLogin", Unit: "allocs/op", Limit: 0.10},
	{Group: "export", Benchmark: "BenchmarkMetricsInc/enabled", Unit: "ns/op"},
	{Group: "export", Benchmark: "BenchmarkRender", Unit: "allocs/op", Limit: 0.10},
}

// benchRuns maps benchmark name to unit to the samples seen across -count runs.
type benchRuns map[string]map[string][]float64

func (b benchRuns) median(name, unit string) (float64, bool) {
	values := b[name][unit]
	if len(values) == 0 {
		return 0, false
	}
	return median(values), true
}

type result struct {
	check
	Base, Candidate float64
	Delta           float64
	Failed          bool
	Missing         bool
}

func main() {
	baselinePath := flag.String("baseline", "", "benchmark output of the reference build")
	candidatePath := flag.String("candidate", "", "benchmark output of the build under test")
	threshold := flag.Float64("threshold", 0.30, "default allowed slowdown ratio (0.30 = +30%)")
	redisRatio := flag.Float64("redis-ratio", 0, "fail when the Redis ledger is more than this many times slower than the memory ledger in the candidate (0 disables)")
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" || *threshold < 0 || *redisRatio < 0 {
		flag.Usage()
		os.Exit(2)
	}

	baseline, err := readRuns(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := readRuns(*candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		os.Exit(1)
	}

	results := compare(baseline, candidate, *threshold)
	failed := report(os.Stdout, results)

	if *redisRatio > 0 {
		ratio, ok := backendRatio(candidate)
		switch {
		case !ok:
			fmt.Fprintln(os.Stdout, "ledger backends: missing samples")
			failed++
		case ratio > *redisRatio:
			fmt.Fprintf(os.Stdout, "ledger backends: redis/memory %.1fx exceeds %.1fx\n", ratio, *redisRatio)
			failed++
		default:
			fmt.Fprintf(os.Stdout, "ledger backends: redis/memory %.1fx\n", ratio)
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d performance check(s) failed\n", failed)
		os.Exit(1)
	}
}

func compare(baseline, candidate benchRuns, threshold float64) []result {
	out := make([]result, 0, len(checks))
	for _, c := range checks {
		r := result{check: c}
		if r.Limit == 0 {
			r.Limit = threshold
		}
		base, okBase := baseline.median(c.Benchmark, c.Unit)
		cand, okCand := candidate.median(c.Benchmark, c.Unit)
		if !okBase || !okCand || base <= 0 {
			r.Missing, r.Failed = true, true
			out = append(out, r)
			continue
		}
		r.Base, r.Candidate = base, cand
		r.Delta = (cand - base) / base
		r.Failed = r.Delta > r.Limit
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// report prints results grouped by area and returns how many failed.
func report(w io.Writer, results []result) int {
	failed := 0
	group := ""
	for _, r := range results {
		if r.Group != group {
			group = r.Group
			fmt.Fprintf(w, "[%s]\n", group)
		}
		status := "ok"
		if r.Failed {
			status = "FAIL"
			failed++
		}
		if r.Missing {
			fmt.Fprintf(w, "  %-4s %s %s: missing samples\n", status, r.Benchmark, r.Unit)
			continue
		}
		fmt.Fprintf(w, "  %-4s %s %s: %.1f -> %.1f (%+.1f%%, limit %+.0f%%)\n",
			status, r.Benchmark, r.Unit, r.Base, r.Candidate, r.Delta*100, r.Limit*100)
	}
	return failed
}

// backendRatio is the candidate's Redis ledger time over its memory ledger time.
func backendRatio(runs benchRuns) (float64, bool) {
	mem, okMem := runs.median("BenchmarkLedgerIssueRedeem", "ns/op")
	rds, okRedis := runs.median("BenchmarkLedgerIssueRedeemRedis", "ns/op")
	if !okMem || !okRedis || mem <= 0 {
		return 0, false
	}
	return rds / mem, true
}

func readRuns(path string) (benchRuns, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseRuns(f)
}

func tracked(name string) bool {
	for _, c := range checks {
		if c.Benchmark == name {
			return true
		}
	}
	return false
}

// parseRuns reads lines of the form
//
//	BenchmarkAuthorize-8   500000   2100 ns/op   512 B/op   9 allocs/op
//
// and keeps tracked benchmarks only.
func parseRuns(r io.Reader) (benchRuns, error) {
	runs := benchRuns{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if !tracked(name) {
			continue
		}
		units := runs[name]
		if units == nil {
			units = map[string][]float64{}
			runs[name] = units
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			units[fields[i+1]] = append(units[fields[i+1]], v)
		}
	}
	return runs, scanner.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends to names.
func trimProcs(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
