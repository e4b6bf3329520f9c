// Package config holds the runtime configuration for the component
// fabric: store location, cache sizing, bus worker pools, persistence
// batching and recovery thresholds, loaded from a YAML file in the
// style of the teacher's HubConfig.
package config

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the default configuration file name.
const DefaultConfigName = "fabric.yaml"

// DefaultStoreFolder is the default store root relative to the
// working directory.
const DefaultStoreFolder = "./DeviceData"

// RuntimeConfig is the global tunable configuration for the fabric.
type RuntimeConfig struct {
	// StoreRoot is the root directory (or bbolt file path) for
	// persisted device data.
	StoreRoot string `yaml:"storeRoot"`

	// LogLevel is one of "error", "warning", "info", "debug".
	LogLevel string `yaml:"logLevel"`
	// LogFile is the log output file, "" for stdout only.
	LogFile string `yaml:"logFile"`

	// LRUCapacity is the fixed capacity of the persistence hot-set cache.
	LRUCapacity int `yaml:"lruCapacity"`
	// LRUExpiration is the sliding expiration for LRU entries, 0 to disable.
	// cmd/fabricd does not pass it on: the persistence service builds its
	// cache with expiration disabled whatever this holds.
	LRUExpiration time.Duration `yaml:"lruExpiration"`
	// LRUHousekeepingInterval is the periodic housekeeping pass interval, 0 to disable.
	// cmd/fabricd does not pass it on: the persistence service builds its
	// cache without periodic housekeeping whatever this holds.
	LRUHousekeepingInterval time.Duration `yaml:"lruHousekeepingInterval"`

	// BusWorkersPerBand is the number of workers per priority band in
	// the event queue processor.
	BusWorkersPerBand int `yaml:"busWorkersPerBand"`

	// PersistenceBatchInterval is the maximum coalescing window before
	// a flush is forced.
	PersistenceBatchInterval time.Duration `yaml:"persistenceBatchInterval"`

	// CircuitBreakerMaxFailures is the failure count that trips a breaker open.
	CircuitBreakerMaxFailures int `yaml:"circuitBreakerMaxFailures"`
	// CircuitBreakerResetTimeout is how long a breaker stays open before half-opening.
	CircuitBreakerResetTimeout time.Duration `yaml:"circuitBreakerResetTimeout"`

	// ErrorMonitorCapacity bounds the recent-errors FIFO.
	ErrorMonitorCapacity int `yaml:"errorMonitorCapacity"`

	// MQTTBrokerURL is the broker used for dead-letter publication, e.g.
	// "tcp://localhost:1883". Empty disables dead-lettering.
	MQTTBrokerURL string `yaml:"mqttBrokerURL"`
	// MQTTDeadLetterTopicPrefix overrides mqttdeadletter.DefaultTopicPrefix.
	MQTTDeadLetterTopicPrefix string `yaml:"mqttDeadLetterTopicPrefix"`
}

// Default returns a RuntimeConfig populated with the documented defaults.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		StoreRoot:                  DefaultStoreFolder,
		LogLevel:                   "info",
		LogFile:                    "",
		LRUCapacity:                256,
		LRUExpiration:              0,
		LRUHousekeepingInterval:    0,
		BusWorkersPerBand:          4,
		PersistenceBatchInterval:   5 * time.Second,
		CircuitBreakerMaxFailures:  3,
		CircuitBreakerResetTimeout: 60 * time.Second,
		ErrorMonitorCapacity:       1000,
		MQTTBrokerURL:              "",
		MQTTDeadLetterTopicPrefix:  "fabric/deadletter",
	}
}

// Load reads and merges a YAML configuration file into cfg. A missing
// file is not an error; cfg keeps its current (default) values.
func (cfg *RuntimeConfig) Load(configFile string) error {
	if configFile == "" {
		configFile = DefaultConfigName
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Infof("Load: config file %s not found, using defaults", configFile)
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	logrus.Infof("Load: configuration loaded from %s", configFile)
	return nil
}

// WatchReload watches configFile for changes and invokes onChange with
// the freshly reloaded configuration whenever it is written. It runs
// until stopCh is closed and never returns an error synchronously;
// watch failures are logged.
func WatchReload(configFile string, base *RuntimeConfig, onChange func(*RuntimeConfig), stopCh <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Errorf("WatchReload: unable to create watcher: %s", err)
		return
	}
	if err := watcher.Add(configFile); err != nil {
		logrus.Warningf("WatchReload: unable to watch %s: %s", configFile, err)
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stopCh:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next := *base
				if err := next.Load(configFile); err != nil {
					logrus.Errorf("WatchReload: reload failed: %s", err)
					continue
				}
				onChange(&next)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Errorf("WatchReload: watcher error: %s", err)
			}
		}
	}()
}
