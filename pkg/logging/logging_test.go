package logging_test

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gardenfabric/core/pkg/logging"
)

func TestConfigureSetsLevel(t *testing.T) {
	logging.Configure("debug", "")
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logrus.GetLevel())
	}

	logging.Configure("error", "")
	if logrus.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("expected error level, got %s", logrus.GetLevel())
	}
}

func TestConfigureDefaultsToInfoForUnknownLevel(t *testing.T) {
	logging.Configure("nonsense", "")
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", logrus.GetLevel())
	}
}
