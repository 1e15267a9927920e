// Package preflight runs startup sanity checks and prints a short report.
// Only a broken config is fatal; every other failure is reported and the
// agent starts anyway, degraded.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"vrcagent/internal/config"
	"vrcagent/internal/logging"
	"vrcagent/internal/memory"
)

// Result is the outcome of one check.
type Result struct {
	Name   string
	OK     bool
	Detail string
}

// Report holds all check results.
type Report struct {
	Results []Result
}

// Fatal reports whether a check failed that the agent cannot run without.
func (r Report) Fatal() bool {
	for _, res := range r.Results {
		if res.Name == "config" && !res.OK {
			return true
		}
	}
	return false
}

// Print writes the report in a fixed-width list.
func (r Report) Print(w io.Writer) {
	for _, res := range r.Results {
		mark := "ok"
		if !res.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  [%-4s] %-10s %s\n", mark, res.Name, res.Detail)
	}
}

// Run executes every check against the loaded config.
func Run(ctx context.Context, cfg *config.Config) Report {
	var rep Report
	rep.Results = append(rep.Results, checkConfig(cfg))
	rep.Results = append(rep.Results, checkOSC(cfg))
	rep.Results = append(rep.Results, checkPlanner(ctx, cfg))
	rep.Results = append(rep.Results, checkMemory(cfg))
	for _, res := range rep.Results {
		if !res.OK {
			logging.BootWarn("preflight %s: %s", res.Name, res.Detail)
		}
	}
	return rep
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Name: "config", Detail: err.Error()}
	}
	return Result{Name: "config", OK: true, Detail: fmt.Sprintf("provider=%s model=%s", cfg.LLM.Provider, cfg.LLM.Model)}
}

// checkOSC resolves and dials the VRChat input port. UDP cannot confirm a
// listener, so success only means the address is sane.
func checkOSC(cfg *config.Config) Result {
	conn, err := net.DialTimeout("udp", cfg.OSC.Addr(), 2*time.Second)
	if err != nil {
		return Result{Name: "osc", Detail: fmt.Sprintf("dial %s: %v", cfg.OSC.Addr(), err)}
	}
	conn.Close()
	return Result{Name: "osc", OK: true, Detail: cfg.OSC.Addr() + " (udp, listener unverified)"}
}

// checkPlanner probes the LLM endpoint without spending a completion. Any
// HTTP response below 500 counts as reachable; auth problems surface later
// with a clearer error from the real call.
func checkPlanner(ctx context.Context, cfg *config.Config) Result {
	var probeURL string
	switch cfg.LLM.Provider {
	case "openai":
		probeURL = strings.TrimRight(cfg.LLM.BaseURL, "/") + "/models"
	case "gemini":
		probeURL = "https://generativelanguage.googleapis.com/v1beta/models?key=" + cfg.LLM.APIKey
	default:
		return Result{Name: "planner", Detail: fmt.Sprintf("unknown provider %q", cfg.LLM.Provider)}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return Result{Name: "planner", Detail: err.Error()}
	}
	if cfg.LLM.Provider == "openai" {
		req.Header.Set("Authorization", "Bearer "+cfg.LLM.APIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: "planner", Detail: fmt.Sprintf("probe: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Result{Name: "planner", Detail: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}
	}
	return Result{Name: "planner", OK: true, Detail: fmt.Sprintf("%s reachable (%d)", cfg.LLM.Provider, resp.StatusCode)}
}

func checkMemory(cfg *config.Config) Result {
	if !cfg.Memory.Enabled {
		return Result{Name: "memory", OK: true, Detail: "disabled"}
	}
	store, err := memory.NewStore(cfg.Memory.DatabasePath, cfg.Memory.MaxRecords)
	if err != nil {
		return Result{Name: "memory", Detail: err.Error()}
	}
	n, err := store.Count(context.Background())
	store.Close()
	if err != nil {
		return Result{Name: "memory", Detail: err.Error()}
	}
	return Result{Name: "memory", OK: true, Detail: fmt.Sprintf("%s (%d records)", cfg.Memory.DatabasePath, n)}
}
