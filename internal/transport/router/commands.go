package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "repeat"
	//   "broadcast"
	Route       string
	Aliases     []string // root-level aliases
	Description string
	Usage       string

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

// Listener receives every inbound message that is not a slash command.
type Listener struct {
	Name       string
	PluginName string
	Timeout    time.Duration
	Handle     HandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string // matched command path tokens
	Command string   // route for commands, empty for listeners
	Args    []string

	// Parsed arguments
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter kit.Adapter
	Config  *Config
	Logger  logx.Logger
}

// Reply sends plain text back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type CommandManager struct {
	mu sync.RWMutex

	root      *cmdNode
	alias     map[string]*cmdNode // alias -> leaf node
	listeners []Listener

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *ConfigManager

	runMu   sync.Mutex
	running bool
	sup     *Supervisor
	appSup  *Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *ConfigManager) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		jobs:    make(chan func(), 256),
	}
}

// SetAppSupervisor lets background registry work (menu updates) run under the app lifecycle.
func (m *CommandManager) SetAppSupervisor(sup *Supervisor) {
	m.runMu.Lock()
	m.appSup = sup
	m.runMu.Unlock()
}

// Supervisor returns the dispatcher's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) SetRegistry(cmds []Command, listeners []Listener) {
	// always inject help
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "显示命令列表",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	}
	cmds = append(cmds, helper)

	root := newRoot()
	alias := map[string]*cmdNode{}
	menuCandidates := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		cc := c
		root.add(route, cc)
		menuCandidates = append(menuCandidates, cc)

		leaf := root.find(route)
		// Multi-token routes get an underscore alias ("a b" -> /a_b) for menu autocomplete.
		// The single-token canonical name must not be aliased or subcommand traversal breaks.
		if leaf != nil {
			if menu, ok := menuCommandFromRoute(route); ok {
				if len(route) > 1 || menu != route[0] {
					if _, exists := alias[menu]; !exists {
						alias[menu] = leaf
					}
				}
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	ls := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		if l.Handle == nil {
			continue
		}
		ls = append(ls, l)
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.listeners = ls
	m.mu.Unlock()

	// Best-effort platform menu update (non-blocking).
	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(root, menuCandidates)
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Debug("menu update failed", logx.Err(err))
			}
		}

		m.runMu.Lock()
		appSup := m.appSup
		m.runMu.Unlock()
		if appSup != nil {
			appSup.Go0("router.menu.update", run)
		} else {
			go run(context.Background())
		}
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)

	sup := NewSupervisor(ctx,
		WithLogger(m.log.With(logx.String("comp", "router"))),
		WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			WithPublishFirstError(true),
			WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	text := strings.TrimSpace(up.Message.Text)
	if strings.HasPrefix(text, "/") {
		m.routeCommand(root, up, text)
		return
	}
	m.routeListeners(root, up)
}

func (m *CommandManager) routeCommand(root context.Context, up kit.Update, text string) {
	msg := up.Message
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word, _ := splitCommandWord(parts[0])
	args := []string{}
	if len(parts) > 1 {
		args = parts[1:]
	}

	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		cmd := *leaf.cmd
		pos, flags, bools := parseFlags(args)
		m.enqueueCommand(root, up, cmd, splitRoute(cmd.Route), pos, args, flags, bools)
		return
	}

	cur, ok := rootNode.child(word)
	if !ok {
		// Groups are shared with other bots; only answer unknown commands in private chats.
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(root, kit.TargetOf(msg), "未知命令，请输入 /help 查看可用命令", nil)
		}
		return
	}
	path := []string{word}
	for len(args) > 0 {
		nxt := args[0]
		if strings.HasPrefix(nxt, "-") {
			break
		}
		child, ok := cur.child(nxt)
		if !ok {
			break
		}
		cur = child
		path = append(path, nxt)
		args = args[1:]
	}

	if cur.cmd == nil {
		_, _ = m.adapter.SendText(root, kit.TargetOf(msg), m.helpText(path), &kit.SendOptions{DisablePreview: true})
		return
	}

	cmd := *cur.cmd
	pos, flags, bools := parseFlags(args)
	m.enqueueCommand(root, up, cmd, path, pos, args, flags, bools)
}

func (m *CommandManager) newRequest(up kit.Update, command string) *Request {
	msg := up.Message
	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
	)
	if command != "" {
		reqLog = reqLog.With(logx.String("cmd", command))
	}
	var cfg *Config
	if m.cfgm != nil {
		cfg = m.cfgm.Get()
	}
	return &Request{
		Update:  up,
		Message: msg,
		Chat:    kit.TargetOf(msg),
		FromID:  msg.FromID,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Config:  cfg,
		Logger:  reqLog,
	}
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, path []string, args []string, raw []string, flags map[string]string, bools map[string]bool) {
	req := m.newRequest(up, cmd.Route)
	req.Path = path
	req.Args = args
	req.RawArgs = raw
	req.Flags = flags
	req.BoolFlags = bools

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "繁忙，请稍后再试", nil)
	}
}

func (m *CommandManager) routeListeners(root context.Context, up kit.Update) {
	m.mu.RLock()
	ls := m.listeners
	m.mu.RUnlock()

	for _, l := range ls {
		req := m.newRequest(up, "")
		req.Logger = req.Logger.With(logx.String("listener", l.Name))

		final := Chain(
			l.Handle,
			MWPanicRecover(m.log),
			MWRequestLog(m.log),
			MWTimeout(l.Timeout),
		)
		if !m.tryEnqueue(func() { _ = final(root, req) }) {
			req.Logger.Warn("listener queue full, message dropped")
		}
	}
}
