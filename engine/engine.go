package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"ffcentral/charging"
	"ffcentral/config"
	"ffcentral/fleet"
	"ffcentral/loadingbay"
	"ffcentral/messaging"
	"ffcentral/navigation"
	"ffcentral/nodestate"
	"ffcentral/orders"
	"ffcentral/pairing"
	"ffcentral/protocol"
	"ffcentral/store"
)

type LogFunc func(format string, args ...any)

// Bus is the part of the messaging client the engine uses.
type Bus interface {
	messaging.Publisher
	fleet.Publisher
	IsConnected() bool
}

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	NodeState  *nodestate.Manager
	MsgClient  Bus
	Layout     *protocol.Layout
	LogFunc    LogFunc
}

// Engine owns every domain component and runs them on a single goroutine.
// Inbound messages, HTTP calls and timer sweeps are all funnelled through Do
// or Post.
type Engine struct {
	cfg       *config.Config
	db        *store.DB
	nodeState *nodestate.Manager
	msgClient Bus
	Events    *EventBus
	logFn     LogFunc

	nav      *navigation.Navigator
	bays     *loadingbay.Allocator
	fts      *pairing.FtsPairing
	modules  *pairing.ModulePairing
	cmd      *fleet.Commander
	charging *charging.Orchestrator
	orders   *orders.Manager
	outbox   *messaging.OutboxDrainer
	ingestor *protocol.Ingestor

	work     chan func()
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	pairingDirty bool
	msgConnected bool
}

func New(c Config) (*Engine, error) {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	layout := c.Layout
	if layout == nil {
		layout = &protocol.Layout{}
	}
	graph, err := navigation.NewFactoryGraph(layout)
	if err != nil {
		return nil, fmt.Errorf("build factory graph: %w", err)
	}
	nodeState := c.NodeState
	if nodeState == nil {
		nodeState = nodestate.NewManager(nil)
	}

	e := &Engine{
		cfg:       c.AppConfig,
		db:        c.DB,
		nodeState: nodeState,
		msgClient: c.MsgClient,
		Events:    NewEventBus(),
		logFn:     logFn,
		work:      make(chan func(), 256),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.nav = navigation.NewNavigator(graph)
	e.bays = loadingbay.New()
	e.cmd = fleet.NewCommander(c.MsgClient)
	e.fts = pairing.NewFtsPairing(e.bays, e.nav, e.cmd, e)
	e.modules = pairing.NewModulePairing(e.cmd, e)
	e.charging = charging.New(charging.Config{
		Enabled:          e.cfg.Charging.Enabled,
		ThresholdPercent: e.cfg.Charging.ThresholdPercent,
	}, e.fts, e.modules, e.nav, e.cmd)
	e.orders = orders.NewManager(orders.Config{
		MaxActive: e.cfg.Orders.MaxActive,
		Plans:     e.cfg.Production,
	}, e.fts, e.modules, e.nav, e.cmd, e.db, e.db, &orderEmitter{bus: e.Events})
	e.outbox = messaging.NewOutboxDrainer(e.db, c.MsgClient, e.cfg.Messaging.OutboxDrainInterval)
	e.ingestor = protocol.NewIngestor(e)
	e.declareModules()
	return e, nil
}

// Start restores persisted orders and starts the loop, the sweeps and the outbox drainer.
func (e *Engine) Start() error {
	e.wireEventHandlers()

	if err := e.db.SeedLocations(e.cfg.Stock.Locations); err != nil {
		return fmt.Errorf("seed stock locations: %w", err)
	}
	open, err := e.db.ListOpenOrders()
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	e.orders.Restore(open)
	e.flushPairing()

	e.outbox.Start()
	go e.loop()
	go e.sweepLoop()
	go e.connectionHealthLoop()

	e.logFn("engine: started (%d nodes, %d restored orders)", len(e.nav.Graph().Nodes()), len(open))
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	<-e.done
	e.outbox.Stop()
	e.logFn("engine: stopped")
}

// Do runs fn on the event loop and waits for it. It reports false when the
// engine stopped before fn ran to completion.
func (e *Engine) Do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case e.work <- func() { defer close(finished); fn() }:
	case <-e.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-e.done:
		return false
	}
}

// Post queues fn on the event loop without waiting.
func (e *Engine) Post(fn func()) {
	select {
	case e.work <- fn:
	case <-e.done:
	}
}

// HandleMessage is the messaging callback for every subscribed topic.
func (e *Engine) HandleMessage(topic string, payload []byte) {
	e.Post(func() { e.ingestor.HandleRaw(topic, payload) })
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.stopChan:
			return
		case fn := <-e.work:
			fn()
			e.flushPairing()
		}
	}
}

// flushPairing publishes and mirrors the device snapshot when something changed.
func (e *Engine) flushPairing() {
	if !e.pairingDirty {
		return
	}
	e.pairingDirty = false
	snap := pairing.TakeSnapshot(e.fts, e.modules)
	e.nodeState.Update(snap, e.nav.Blocks())
	e.Events.Emit(Event{Type: EventPairingChanged, Payload: PairingChangedEvent{Snapshot: snap}})
}

func (e *Engine) declareModules() {
	for _, n := range e.nav.Graph().ModuleNodes("") {
		e.modules.Declare(n.ID, n.ModuleType)
	}
	e.pairingDirty = true
}

// Accessors
func (e *Engine) DB() *store.DB { return e.db }
func (e *Engine) AppConfig() *config.Config { return e.cfg }
func (e *Engine) NodeState() *nodestate.Manager { return e.nodeState }
func (e *Engine) MsgClient() Bus { return e.msgClient }

func (e *Engine) checkConnectionStatus() {
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else {
		if e.msgConnected {
			e.msgConnected = false
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
}

// connectionHealthLoop watches the bus connection and purges delivered outbox rows.
func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	e.Post(e.checkConnectionStatus)
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.Post(e.checkConnectionStatus)
			if n, err := e.db.PurgeSentOutbox(time.Now().Add(-24 * time.Hour)); err != nil {
				e.logFn("engine: purge outbox: %v", err)
			} else if n > 0 {
				e.logFn("engine: purged %d delivered outbox messages", n)
			}
		}
	}
}

func (e *Engine) sweepLoop() {
	interval := e.cfg.Orders.RetriggerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.Post(e.sweep)
		}
	}
}
