// Package agent wires the dual-rate control loop together: a fast instinct
// loop that keeps the avatar alive, and a slow tick loop that watches the
// world, decides when to replan, and dispatches planner intent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"vrcagent/internal/action"
	"vrcagent/internal/config"
	"vrcagent/internal/dispatch"
	"vrcagent/internal/hotkey"
	"vrcagent/internal/instinct"
	"vrcagent/internal/intent"
	"vrcagent/internal/logging"
	"vrcagent/internal/memory"
	"vrcagent/internal/perception"
	"vrcagent/internal/planner"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State payload truncation caps. Intent control needs gist, not transcripts.
const (
	sceneCap     = 280
	heardCap     = 90
	memorySayCap = 80
	sceneLineCap = 100
)

const shortTermDepth = 8

// replyDebounce limits how often fresh heard text alone may force a chat.
const replyDebounce = 12 * time.Second

// Options carries the runtime's collaborators. Observer, Planner, and
// Dispatcher are required; Memory and Hotkeys are optional.
type Options struct {
	Config     *config.Config
	Observer   *perception.CachedObserver
	Planner    planner.Planner
	Dispatcher *dispatch.Dispatcher
	Memory     *memory.Store
	Hotkeys    hotkey.Listener

	// Seed fixes the instinct RNG; zero means time-based entropy.
	Seed int64
}

// Runtime owns the loops and all cross-loop state.
type Runtime struct {
	cfg      *config.Config
	observer *perception.CachedObserver
	cell     *intent.Cell
	gate     *intent.Gate
	gen      instinctGenerator
	async    *planner.Async
	disp     *dispatch.Dispatcher
	store    *memory.Store
	hotkeys  hotkey.Listener
	rng      *rand.Rand

	mu         sync.Mutex
	pendingCfg *config.Config
	shortTerm  []planner.MemoryLine
	lastChatAt time.Time
	lastReply  string
	lastReplAt time.Time
	dispatched string // intent ID whose actions already ran
	forceSay   bool

	stopOnce sync.Once
	stopFn   context.CancelFunc
}

// instinctGenerator is the narrow slice of the instinct package the runtime
// needs, split out so tests can substitute a scripted generator.
type instinctGenerator interface {
	Tick(cur intent.Intent, heard string, forceKeepalive bool) []action.Action
	SetTunables(cfg config.RuntimeConfig)
}

func newGenerator(cfg config.RuntimeConfig, seed int64) instinctGenerator {
	return instinct.NewGenerator(cfg, seed)
}

// New builds a runtime. The planner is wrapped for async execution; results
// land in the intent cell from the background goroutine.
func New(opts Options) (*Runtime, error) {
	if opts.Config == nil || opts.Observer == nil || opts.Planner == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("agent: missing required option")
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cell := intent.NewCell()
	r := &Runtime{
		cfg:      opts.Config,
		observer: opts.Observer,
		cell:     cell,
		gate:     intent.NewGate(cell, opts.Config.Runtime.SceneSimilarityThreshold),
		disp:     opts.Dispatcher,
		store:    opts.Memory,
		hotkeys:  opts.Hotkeys,
		rng:      rand.New(rand.NewSource(seed)),
	}
	r.gen = newGenerator(opts.Config.Runtime, seed)
	r.async = planner.NewAsync(context.Background(), opts.Planner, r.onPlan)
	return r, nil
}

// Reload queues a new config; the tick loop applies it at the next tick so
// the gate and generator never see a half-applied config.
func (r *Runtime) Reload(cfg *config.Config) {
	r.mu.Lock()
	r.pendingCfg = cfg
	r.mu.Unlock()
	logging.ConfigLog("reload queued")
}

// Run drives both loops until ctx is cancelled or a stop override arrives.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.stopFn = cancel
	defer r.stop()

	r.observer.Start(ctx)

	// The gate needs a baseline and the agent an opening intent before the
	// loops settle into event-driven replanning.
	bootCtx, bootCancel := context.WithTimeout(ctx, 15*time.Second)
	obs, err := r.observer.WaitFirst(bootCtx)
	bootCancel()
	if err != nil {
		logging.BootWarn("no first observation, starting on instinct alone: %v", err)
	} else {
		r.async.Request(r.buildState(obs, time.Now()))
		r.gate.Accept(obs)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.tickLoop(ctx) })
	g.Go(func() error { return r.instinctLoop(ctx) })
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Runtime) stop() {
	r.stopOnce.Do(func() {
		if r.stopFn != nil {
			r.stopFn()
		}
		r.async.Close()
		r.observer.Close()
	})
}

// onPlan installs a successful plan as the new current intent. Called from
// the async planner goroutine.
func (r *Runtime) onPlan(plan planner.Plan) {
	now := time.Now()
	in := intent.Intent{
		ID:            uuid.New().String(),
		Goal:          plan.Goal,
		ActivityLevel: plan.ActivityLevel,
		Curiosity:     plan.Curiosity,
		AllowMove:     plan.AllowMove,
		Say:           plan.Say,
		Actions:       plan.Actions,
		CreatedAt:     now,
		TTL:           r.runtimeCfg().IntentTTL(),
	}
	r.cell.Replace(in)
	logging.Planner("intent %q activity=%.2f actions=%d", in.Goal, in.ActivityLevel, len(in.Actions))
}

// tickLoop is the slow loop: observe, gate, dispatch intent, remember.
func (r *Runtime) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.runtimeCfg().TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if r.applyPendingConfig() {
			ticker.Reset(r.runtimeCfg().TickInterval())
		}
		r.drainOverrides()
		r.tick(ctx, time.Now())
	}
}

func (r *Runtime) tick(ctx context.Context, now time.Time) {
	// Action holds sleep inline, so a busy tick can overrun the interval.
	timer := logging.StartTimer(logging.CategoryLoop, "tick")
	defer timer.StopWithThreshold(r.runtimeCfg().TickInterval())

	obs, ok := r.observer.Latest(now)
	if !ok {
		logging.LoopDebug("no observation yet, tick skipped")
		return
	}

	if reason := r.gate.ShouldReplan(obs, now); reason != intent.ReasonNone {
		logging.GateLog("replan: %s", reason)
		started := r.async.Request(r.buildState(obs, now))
		// Accept even when coalesced: the pending slot carries this
		// observation, so the eventual call plans against it.
		r.gate.Accept(obs)
		if !started {
			logging.GateDebug("replan folded into in-flight call")
		}
	}

	cur, fresh := r.cell.Current(now)
	if !fresh {
		cur = intent.Default()
	}

	if r.runtimeCfg().ObserveOnly {
		logging.Loop("observe-only: scene=%q heard=%q", planner.Truncate(obs.Scene, 60), obs.Heard)
		return
	}

	var in dispatch.Input
	in.AllowMove = cur.AllowMove

	// Intent actions run once per intent generation; subsequent ticks under
	// the same intent leave the actuators to instinct.
	if fresh && r.takeIntentActions(cur.ID) {
		in.Intent = r.withSpeak(cur)
	}

	if chat := r.socialChat(cur, obs, now, fresh); chat != "" {
		in.Override = append(in.Override, action.Action{Kind: action.KindChat, Text: chat})
	}

	executed := r.disp.Dispatch(ctx, in)
	r.remember(ctx, obs, cur, executed)
}

// instinctLoop is the fast loop. It runs at a jittered sub-second cadence
// and never touches the planner or the gate.
func (r *Runtime) instinctLoop(ctx context.Context) error {
	stillTicks := 0
	for {
		cfg := r.runtimeCfg()
		wait := cfg.IdleIntervalMinSec + r.randFloat()*(cfg.IdleIntervalMaxSec-cfg.IdleIntervalMinSec)
		if wait <= 0 {
			wait = 0.3
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait * float64(time.Second))):
		}

		now := time.Now()
		cur, fresh := r.cell.Current(now)
		if !fresh {
			cur = intent.Default()
		}
		var heard string
		if obs, ok := r.observer.Latest(now); ok {
			heard = obs.Heard
		}

		acts := r.gen.Tick(cur, heard, stillTicks >= 6)
		if len(acts) == 0 {
			stillTicks++
			continue
		}
		stillTicks = 0
		if cfg.ObserveOnly {
			continue
		}
		r.disp.Dispatch(ctx, dispatch.Input{Instinct: acts, AllowMove: cur.AllowMove})
	}
}

func (r *Runtime) randFloat() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// takeIntentActions reports whether this intent's action script still needs
// dispatching, and marks it consumed.
func (r *Runtime) takeIntentActions(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" || id == r.dispatched {
		return false
	}
	r.dispatched = id
	return true
}

// withSpeak guarantees a spoken line reaches the chatbox: when the plan has
// Say text but no chat action, one is appended.
func (r *Runtime) withSpeak(cur intent.Intent) []action.Action {
	acts := cur.Actions
	if cur.Say == "" {
		return acts
	}
	for _, a := range acts {
		if a.Kind == action.KindChat {
			return acts
		}
	}
	out := make([]action.Action, len(acts), len(acts)+1)
	copy(out, acts)
	out = append(out, action.Action{Kind: action.KindChat, Text: cur.Say})
	r.mu.Lock()
	r.lastChatAt = time.Now()
	r.mu.Unlock()
	return out
}

// socialChat decides whether this tick produces an unplanned chat line: an
// operator force-say, a debounced reply to fresh heard text, or an
// occasional self-initiated remark when players are around.
func (r *Runtime) socialChat(cur intent.Intent, obs perception.Observation, now time.Time, fresh bool) string {
	cfg := r.runtimeCfg()
	r.mu.Lock()
	force := r.forceSay
	r.forceSay = false
	lastChat := r.lastChatAt
	lastReply := r.lastReply
	lastReplAt := r.lastReplAt
	r.mu.Unlock()

	if force {
		line := extraLine(cur, obs)
		r.noteChat(now)
		return line
	}

	cooldown := time.Duration(cfg.AutoChatCooldownSec * float64(time.Second))
	if cooldown <= 0 {
		cooldown = 14 * time.Second
	}
	if now.Sub(lastChat) < cooldown {
		return ""
	}

	// Reply to fresh heard text when the current plan stayed silent.
	if obs.Heard != "" && obs.Heard != lastReply && now.Sub(lastReplAt) >= replyDebounce {
		if !fresh || cur.Say == "" {
			r.mu.Lock()
			r.lastReply = obs.Heard
			r.lastReplAt = now
			r.mu.Unlock()
			r.noteChat(now)
			return extraLine(cur, obs)
		}
	}

	if !socialScene(obs.Scene) {
		return ""
	}
	if r.randFloat() < 0.35+cur.ActivityLevel*0.45 {
		r.noteChat(now)
		return extraLine(cur, obs)
	}
	return ""
}

func (r *Runtime) noteChat(now time.Time) {
	r.mu.Lock()
	r.lastChatAt = now
	r.mu.Unlock()
}

// socialScene is a cheap players-nearby heuristic over the scene text.
func socialScene(scene string) bool {
	s := strings.ToLower(scene)
	for _, kw := range []string{"player", "avatar", "people", "someone", "玩家", "人"} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// extraLine produces a short situational chat line without a planner round
// trip. The planner owns real conversation; this only covers forced or
// filler remarks.
func extraLine(cur intent.Intent, obs perception.Observation) string {
	if cur.Say != "" {
		return planner.Truncate(cur.Say, 70)
	}
	scene := strings.TrimSpace(obs.Scene)
	if scene != "" {
		if i := strings.IndexAny(scene, ".!?\n"); i > 0 {
			scene = scene[:i]
		}
		return planner.Truncate(strings.TrimSpace(scene), 70)
	}
	return "just looking around"
}

// buildState assembles the token-budgeted planner payload.
func (r *Runtime) buildState(obs perception.Observation, now time.Time) planner.State {
	cur, fresh := r.cell.Current(now)
	if !fresh {
		cur = intent.Default()
	}
	state := planner.State{
		Time:  now.Format("15:04:05"),
		Scene: planner.Truncate(obs.Scene, sceneCap),
		Heard: planner.Truncate(obs.Heard, heardCap),
		IntentState: planner.IntentState{
			Goal:          cur.Goal,
			ActivityLevel: cur.ActivityLevel,
			Curiosity:     cur.Curiosity,
			AllowMove:     cur.AllowMove,
		},
	}

	r.mu.Lock()
	state.ShortTermMemory = append(state.ShortTermMemory, r.shortTerm...)
	r.mu.Unlock()

	if r.store != nil {
		r.mu.Lock()
		topK := r.cfg.Memory.RetrieveTopK
		r.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		recs, err := r.store.Retrieve(ctx, obs.Scene+"\n"+obs.Heard, topK)
		cancel()
		if err != nil {
			logging.MemoryWarn("retrieve failed, state sent without long-term memory: %v", err)
		}
		for _, rec := range recs {
			state.LongTermMemory = append(state.LongTermMemory, planner.MemoryLine{
				Scene: planner.Truncate(rec.Scene, sceneLineCap),
				Say:   planner.Truncate(rec.Say, memorySayCap),
			})
		}
	}
	return state
}

// remember records the tick in short-term and long-term memory.
func (r *Runtime) remember(ctx context.Context, obs perception.Observation, cur intent.Intent, executed []action.Dispatched) {
	if len(executed) == 0 {
		return
	}
	acts := make([]action.Action, 0, len(executed))
	said := ""
	for _, d := range executed {
		acts = append(acts, d.Action)
		if d.Action.Kind == action.KindChat {
			said = d.Action.Text
		}
	}

	line := planner.MemoryLine{
		Scene:   planner.Truncate(obs.Scene, sceneLineCap),
		Say:     planner.Truncate(said, memorySayCap),
		Actions: action.Signature(acts),
	}
	r.mu.Lock()
	r.shortTerm = append(r.shortTerm, line)
	if len(r.shortTerm) > shortTermDepth {
		r.shortTerm = r.shortTerm[len(r.shortTerm)-shortTermDepth:]
	}
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	err := r.store.Append(ctx, memory.Record{
		Scene:   obs.Scene,
		Heard:   obs.Heard,
		Say:     said,
		Actions: acts,
	})
	if err != nil {
		logging.MemoryWarn("append failed, tick not persisted: %v", err)
	}
}

// drainOverrides consumes any queued hotkey events without blocking.
func (r *Runtime) drainOverrides() {
	if r.hotkeys == nil {
		return
	}
	for {
		select {
		case ev, ok := <-r.hotkeys.Events():
			if !ok {
				r.hotkeys = nil
				return
			}
			switch ev {
			case hotkey.EventForceSay:
				r.mu.Lock()
				r.forceSay = true
				r.mu.Unlock()
				logging.Hotkey("force-say requested")
			case hotkey.EventStop:
				logging.Hotkey("stop requested")
				if r.stopFn != nil {
					r.stopFn()
				}
			}
		default:
			return
		}
	}
}

func (r *Runtime) runtimeCfg() config.RuntimeConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Runtime
}

// applyPendingConfig swaps in a queued reload. Reports whether the tick
// interval may have changed.
func (r *Runtime) applyPendingConfig() bool {
	r.mu.Lock()
	next := r.pendingCfg
	r.pendingCfg = nil
	if next != nil {
		r.cfg = next
	}
	r.mu.Unlock()
	if next == nil {
		return false
	}
	r.gen.SetTunables(next.Runtime)
	r.gate.SetSceneThreshold(next.Runtime.SceneSimilarityThreshold)
	logging.ConfigLog("reload applied: tick=%.2fs ttl=%.2fs threshold=%.2f",
		next.Runtime.TickIntervalSec, next.Runtime.IntentTTLSec, next.Runtime.SceneSimilarityThreshold)
	return true
}
