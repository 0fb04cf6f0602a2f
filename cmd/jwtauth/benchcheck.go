package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/spf13/cobra"
)

const defaultRegressionThreshold = 0.30

// benchKey names one measured unit of one benchmark.
type benchKey struct {
	name string
	unit string
}

// tracked lists the engine hot paths benchcheck gates on, in report order.
var tracked = []benchKey{
	{"BenchmarkAuthenticateToken", "ns/op"},
	{"BenchmarkAuthenticateToken", "allocs/op"},
	{"BenchmarkIssue", "ns/op"},
	{"BenchmarkIssue", "allocs/op"},
	{"BenchmarkRedeemSingleActive", "ns/op"},
}

// benchRun holds every sample of a tracked key from one go test -bench output.
type benchRun map[benchKey][]float64

func newBenchcheckCmd() *cobra.Command {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)

	cmd := &cobra.Command{
		Use:   "benchcheck",
		Short: "Compare go test -bench output against a baseline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baselinePath == "" || candidatePath == "" {
				return errors.New("--baseline and --candidate are required")
			}
			if threshold < 0 {
				return errors.New("--threshold must be >= 0")
			}
			baseline, err := readBenchFile(baselinePath)
			if err != nil {
				return fmt.Errorf("parse baseline: %w", err)
			}
			candidate, err := readBenchFile(candidatePath)
			if err != nil {
				return fmt.Errorf("parse candidate: %w", err)
			}
			rows := compareRuns(baseline, candidate, threshold)
			if err := writeComparison(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			return verdict(rows)
		},
	}
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "baseline benchmark output")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "candidate benchmark output")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultRegressionThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	return cmd
}

// comparison is one report row. problem is set when the key could not be
// compared or exceeded the threshold.
type comparison struct {
	benchKey
	measured   bool
	base, cand float64
	delta      float64
	problem    string
}

func compareRuns(baseline, candidate benchRun, threshold float64) []comparison {
	rows := make([]comparison, 0, len(tracked))
	for _, key := range tracked {
		row := comparison{benchKey: key}
		base, cand := baseline[key], candidate[key]
		switch {
		case len(base) == 0 || len(cand) == 0:
			row.problem = "missing samples"
		default:
			row.measured = true
			row.base, row.cand = median(base), median(cand)
			if row.base <= 0 {
				row.problem = "invalid baseline median"
				break
			}
			row.delta = (row.cand - row.base) / row.base
			if row.delta > threshold {
				row.problem = fmt.Sprintf("regressed by %+.2f%% (limit %+.2f%%)", row.delta*100, threshold*100)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func writeComparison(out io.Writer, rows []comparison) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "benchmark\tunit\tbaseline\tcandidate\tdelta\t")
	for _, r := range rows {
		if !r.measured {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t%s\n", r.name, r.unit, r.problem)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%+.2f%%\t%s\n", r.name, r.unit, r.base, r.cand, r.delta*100, r.problem)
	}
	return tw.Flush()
}

// verdict fails when any row carries a problem.
func verdict(rows []comparison) error {
	var problems []string
	for _, r := range rows {
		if r.problem != "" {
			problems = append(problems, fmt.Sprintf("%s %s: %s", r.name, r.unit, r.problem))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("benchmark regression check failed:\n  %s", strings.Join(problems, "\n  "))
}

func readBenchFile(path string) (benchRun, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchRun(f)
}

func parseBenchRun(r io.Reader) (benchRun, error) {
	samples := benchRun{}
	want := make(map[benchKey]bool, len(tracked))
	for _, key := range tracked {
		want[key] = true
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name, values, ok := parseBenchLine(scanner.Text())
		if !ok {
			continue
		}
		for unit, v := range values {
			key := benchKey{name: name, unit: unit}
			if want[key] {
				samples[key] = append(samples[key], v)
			}
		}
	}
	return samples, scanner.Err()
}

// parseBenchLine splits a result line such as
//
//	BenchmarkIssue-8   200000   6000 ns/op   30 allocs/op
//
// into its name without the GOMAXPROCS suffix and a value per unit.
func parseBenchLine(line string) (string, map[string]float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return "", nil, false
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return "", nil, false
	}
	values := make(map[string]float64, (len(fields)-2)/2)
	for i := 2; i+1 < len(fields); i += 2 {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			continue
		}
		values[fields[i+1]] = v
	}
	return trimProcs(fields[0]), values, len(values) > 0
}

// trimProcs strips the -GOMAXPROCS suffix go test appends to benchmark names.
func trimProcs(name string) string {
	head := strings.TrimRightFunc(name, unicode.IsDigit)
	if len(head) < len(name) && strings.HasSuffix(head, "-") {
		return head[:len(head)-1]
	}
	return name
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
