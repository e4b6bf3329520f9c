// Command fabricd wires the component fabric's collaborators together:
// a topology-aware event bus, a priority-banded queue processor, a
// bbolt-backed persistence service, the error monitor and recovery
// manager, and a circuit breaker for the store. It mirrors the teacher's
// style of a small main() that loads config, sets up logging, and
// starts long-running services under a cancellable context.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/gardenfabric/core/pkg/circuitbreaker"
	"github.com/gardenfabric/core/pkg/config"
	"github.com/gardenfabric/core/pkg/errormonitor"
	"github.com/gardenfabric/core/pkg/eventbus"
	"github.com/gardenfabric/core/pkg/eventbus/mqttdeadletter"
	"github.com/gardenfabric/core/pkg/logging"
	"github.com/gardenfabric/core/pkg/persistence"
	"github.com/gardenfabric/core/pkg/queue"
	"github.com/gardenfabric/core/pkg/store/boltstore"
	"github.com/gardenfabric/core/pkg/topology"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigName, "path to the fabric configuration file")
	flag.Parse()

	cfg := config.Default()
	if err := cfg.Load(*configFile); err != nil {
		logrus.Fatalf("main: failed to load config %s: %s", *configFile, err)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.StoreRoot, 0755); err != nil {
		logrus.Fatalf("main: failed to create store root %s: %s", cfg.StoreRoot, err)
	}
	st, err := boltstore.Open(cfg.StoreRoot + "/fabric.db")
	if err != nil {
		logrus.Fatalf("main: failed to open store: %s", err)
	}
	defer st.Close()

	topo := topology.New()
	bus := eventbus.New(topo)

	queueProc := queue.NewProcessor(cfg.BusWorkersPerBand)
	queueProc.Start(ctx)
	defer queueProc.Shutdown()
	bus.AsyncQueue = queueProc

	persistSvc := persistence.New(st, cfg.LRUCapacity, cfg.PersistenceBatchInterval)
	persistSvc.Start(ctx)
	defer persistSvc.Shutdown()
	bus.Subscribe(persistSvc, eventbus.Options{Synchronous: false})

	storeBreaker := circuitbreaker.New("store", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout)
	storeBreaker.EmitEventHook = func(ctx context.Context, event circuitbreaker.StateChangedEvent) error {
		logrus.Warnf("circuit breaker %s: %s -> %s (%s)", event.ServiceName, event.OldState, event.NewState, event.Reason)
		return nil
	}

	monitor := errormonitor.New(cfg.ErrorMonitorCapacity)
	recovery := errormonitor.NewRecoveryManager(monitor)
	recovery.RegisterStrategy(errormonitor.Strategy{
		Name:     "wait-for-store-breaker-close",
		Priority: 10,
		CanRecover: func(rec errormonitor.Record) bool {
			return rec.Source == errormonitor.SourceStore
		},
		Attempt: func(ctx context.Context, rec errormonitor.Record) bool {
			allowed, _ := storeBreaker.Allow(ctx)
			return allowed
		},
	})

	if cfg.MQTTBrokerURL != "" {
		opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBrokerURL).SetClientID("fabricd")
		mqttClient := mqtt.NewClient(opts)
		if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
			logrus.Errorf("main: mqtt connect to %s failed: %s", cfg.MQTTBrokerURL, token.Error())
		} else {
			defer mqttClient.Disconnect(250)
			bus.DeadLetterStore = mqttdeadletter.New(mqttClient, mqttdeadletter.Options{
				TopicPrefix: cfg.MQTTDeadLetterTopicPrefix,
			})
			logrus.Infof("main: dead-lettering failed events to %s via %s", cfg.MQTTDeadLetterTopicPrefix, cfg.MQTTBrokerURL)
		}
	}

	logrus.Infof("fabricd: started, store root %s, watching for shutdown signal", cfg.StoreRoot)

	reload := make(chan struct{}, 1)
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	config.WatchReload(*configFile, cfg, func(next *config.RuntimeConfig) {
		*cfg = *next
		select {
		case reload <- struct{}{}:
		default:
		}
	}, stopWatch)

runLoop:
	for {
		select {
		case <-reload:
			logrus.Infof("fabricd: configuration reloaded from %s", *configFile)
		case <-ctx.Done():
			break runLoop
		}
	}
	logrus.Info("fabricd: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := persistSvc.ProcessPendingEvents(shutdownCtx); err != nil {
		logrus.Errorf("fabricd: final flush failed: %s", err)
	}
}
