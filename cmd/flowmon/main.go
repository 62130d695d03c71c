package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danshapiro/flowmon/internal/rmonitor/monitor"
	"github.com/danshapiro/flowmon/internal/rmonitor/procutil"
	"github.com/danshapiro/flowmon/internal/rmonitor/statstore"
	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/category"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  flowmon check --config <monitor.yaml>")
	fmt.Fprintln(w, "  flowmon wrap --config <monitor.yaml> --node-id <n> [--category <name>] [--features <list>] -- <command...>")
	fmt.Fprintln(w, "  flowmon stats --log-dir <dir> [--glob <pattern>]")
	fmt.Fprintln(w, "  flowmon stats --etcd <endpoints> --category <name> [--prefix <key prefix>]")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	switch args[0] {
	case "check":
		return check(args[1:], stdout, stderr)
	case "wrap":
		return wrap(args[1:], stdout, stderr)
	case "stats":
		return stats(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 1
	}
}

// flagValue returns the value following args[*i], advancing i.
func flagValue(args []string, i *int, stderr io.Writer) (string, bool) {
	name := args[*i]
	*i++
	if *i >= len(args) {
		fmt.Fprintf(stderr, "%s requires a value\n", name)
		return "", false
	}
	return args[*i], true
}

func loadConfig(path string) (*monitor.Config, error) {
	opts, err := monitor.LoadOptionsFile(path)
	if err != nil {
		return nil, err
	}
	return monitor.NewConfig(opts, procutil.DefaultLocator())
}

func check(args []string, stdout, stderr io.Writer) int {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			v, ok := flagValue(args, &i, stderr)
			if !ok {
				return 1
			}
			configPath = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	if configPath == "" {
		usage(stderr)
		return 1
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "probe=%s\n", cfg.ProbeExecutable)
	fmt.Fprintf(stdout, "log_prefix=%s\n", cfg.LogPrefixTemplate)
	fmt.Fprintf(stdout, "interval=%d\n", cfg.Interval)
	return 0
}

type wrapResult struct {
	TaskID  string              `json:"task_id"`
	Command string              `json:"command"`
	Inputs  []batch.FileMapping `json:"inputs"`
	Outputs []batch.FileMapping `json:"outputs"`
}

func wrap(args []string, stdout, stderr io.Writer) int {
	var configPath, categoryName, features string
	nodeID := -1
	var command []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "--category", "--features", "--node-id":
			flag := args[i]
			v, ok := flagValue(args, &i, stderr)
			if !ok {
				return 1
			}
			switch flag {
			case "--config":
				configPath = v
			case "--category":
				categoryName = v
			case "--features":
				features = v
			case "--node-id":
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					fmt.Fprintf(stderr, "--node-id must be a non-negative integer: %q\n", v)
					return 1
				}
				nodeID = n
			}
		case "--":
			command = args[i+1:]
			i = len(args)
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	if configPath == "" || nodeID < 0 || len(command) == 0 {
		usage(stderr)
		return 1
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	m := monitor.NewWithConfig(cfg, monitor.WithDiagnostics(stderr))
	w := dag.New(batch.ParseFeatures(features), nil, nil)
	n := w.AddNode(&dag.Node{ID: nodeID, Category: category.New(categoryName, category.ModeFixed)})
	task := batch.NewTask(nodeID, strings.Join(command, " "))
	if err := m.NodeSubmit(context.Background(), n, task); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return writeJSON(stdout, stderr, wrapResult{
		TaskID:  task.ID,
		Command: task.Command,
		Inputs:  task.Inputs,
		Outputs: task.Outputs,
	})
}

type categoryReport struct {
	Count int                          `json:"count"`
	Max   map[summary.Resource]float64 `json:"max"`
	Min   map[summary.Resource]float64 `json:"min"`
	Mean  map[summary.Resource]float64 `json:"mean"`
}

func report(st category.Stats) categoryReport {
	r := categoryReport{Count: st.Count, Max: st.Max, Min: st.Min, Mean: map[summary.Resource]float64{}}
	for res := range st.Sum {
		r.Mean[res] = st.Mean(res)
	}
	return r
}

func stats(args []string, stdout, stderr io.Writer) int {
	var logDir, pattern, etcd, categoryName, prefix string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--log-dir", "--glob", "--etcd", "--category", "--prefix":
			flag := args[i]
			v, ok := flagValue(args, &i, stderr)
			if !ok {
				return 1
			}
			switch flag {
			case "--log-dir":
				logDir = v
			case "--glob":
				pattern = v
			case "--etcd":
				etcd = v
			case "--category":
				categoryName = v
			case "--prefix":
				prefix = v
			}
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	switch {
	case etcd != "":
		return statsFromEtcd(etcd, prefix, categoryName, stdout, stderr)
	case logDir != "":
		return statsFromLogDir(logDir, pattern, stdout, stderr)
	default:
		usage(stderr)
		return 1
	}
}

func statsFromLogDir(logDir, pattern string, stdout, stderr io.Writer) int {
	if pattern == "" {
		pattern = summary.DefaultCollectPattern
	}
	paths, err := summary.Collect(logDir, pattern)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	byCategory := map[string]category.Stats{}
	for _, p := range paths {
		s, err := summary.ParseFile(p)
		if err != nil {
			fmt.Fprintf(stderr, "skipping %s: %v\n", p, err)
			continue
		}
		name := strings.TrimSpace(s.Category)
		if name == "" {
			name = category.DefaultName
		}
		st, ok := byCategory[name]
		if !ok {
			st = category.NewStats()
		}
		st.Add(s)
		byCategory[name] = st
	}
	out := make(map[string]categoryReport, len(byCategory))
	for name, st := range byCategory {
		out[name] = report(st)
	}
	return writeJSON(stdout, stderr, out)
}

func statsFromEtcd(endpoints, prefix, categoryName string, stdout, stderr io.Writer) int {
	if strings.TrimSpace(categoryName) == "" {
		fmt.Fprintln(stderr, "--category is required with --etcd")
		return 1
	}
	store, err := statstore.NewEtcdStore(statstore.EtcdConfig{
		Endpoints: strings.Split(endpoints, ","),
		Prefix:    prefix,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = store.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), statstore.DefaultDialTimeout)
	defer cancel()
	st, err := store.Load(ctx, categoryName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return writeJSON(stdout, stderr, map[string]categoryReport{categoryName: report(st)})
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
