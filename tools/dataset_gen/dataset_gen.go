package main

// dataset_gen.go is a tiny helper utility to generate deterministic synthetic
// segment datasets for benchmarking and load-testing memoria (outside `go
// test`). It emits newline-separated JSON segment-ingest records
// (project_id, text, type), so they can be piped into a load tester.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 100000 -dist=zipf -seed=42 -out segments.jsonl
//
// Flags:
//
//	-n       number of segments to generate (default 100000)
//	-dist    project_id distribution: "uniform" or "zipf" (default uniform)
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>=1) (default 1.0)
//	-projects number of distinct project ids in the pool (default 50)
//	-seed    RNG seed (default current time)
//	-out     output file (default stdout)
//
// The program is deliberately simple but placed under version control so
// any contributor can regenerate the exact dataset used in a performance
// regression hunt.
//
// © 2025 memoria authors. MIT License.

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/memoria-dev/memoria/internal/segment"
)

var segmentTypes = []segment.Type{
	segment.TypeMessage,
	segment.TypeCode,
	segment.TypeLog,
	segment.TypeNote,
	segment.TypeDecision,
}

type record struct {
	ProjectID string `json:"project_id"`
	Text      string `json:"text"`
	Type      string `json:"type"`
}

func main() {
	var (
		n        = flag.Int("n", 100_000, "number of segments to generate")
		dist     = flag.String("dist", "uniform", "project_id distribution: uniform or zipf")
		zipfS    = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV    = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		projects = flag.Int("projects", 50, "number of distinct project ids in the pool")
		seedVal  = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath  = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if *projects <= 0 {
		fmt.Fprintln(os.Stderr, "projects must be >0")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var projectIdx func() uint64
	switch *dist {
	case "uniform":
		projectIdx = func() uint64 { return uint64(rnd.Intn(*projects)) }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, uint64(*projects-1))
		projectIdx = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	enc := json.NewEncoder(w)
	for i := 0; i < *n; i++ {
		rec := record{
			ProjectID: fmt.Sprintf("project-%d", projectIdx()),
			Text:      randomText(rnd),
			Type:      string(segmentTypes[rnd.Intn(len(segmentTypes))]),
		}
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(1)
		}
	}
}

var words = []string{
	"refactor", "fix", "test", "investigate", "deploy", "rollback", "latency",
	"regression", "flaky", "timeout", "migration", "schema", "retry", "cache",
	"token", "context", "snapshot", "prune", "stash", "index",
}

func randomText(rnd *rand.Rand) string {
	n := 8 + rnd.Intn(24)
	buf := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, words[rnd.Intn(len(words))]...)
	}
	return string(buf)
}
