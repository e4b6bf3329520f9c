// Package logging configures the shared logrus logger used across the
// runtime. It follows the teacher's single entry-point approach: call
// Configure once at process startup, then use logrus.Infof/Errorf/etc
// directly from any package.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Configure sets the logging level and output destination.
//
// levelName is one of "error", "warning"/"warn", "info", "debug". Any
// other value (including "") defaults to "info".
// filename is the output log file path; use "" to log to stdout only.
func Configure(levelName string, filename string) {
	level := logrus.InfoLevel
	switch strings.ToLower(levelName) {
	case "error":
		level = logrus.ErrorLevel
	case "warn", "warning":
		level = logrus.WarnLevel
	case "info", "":
		level = logrus.InfoLevel
	case "debug":
		level = logrus.DebugLevel
	}

	var out io.Writer = os.Stdout
	if filename != "" {
		fh, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			logrus.Errorf("Configure: unable to open log file %s: %s", filename, err)
		} else {
			out = io.MultiWriter(out, fh)
		}
	}

	logrus.SetReportCaller(true)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		PadLevelText:    true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000-0700",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			funcName := f.Function
			if idx := strings.LastIndex(funcName, "."); idx >= 0 {
				funcName = funcName[idx+1:]
			}
			return funcName + "(): ", fmt.Sprintf(" %s:%d", path.Base(f.File), f.Line)
		},
	})
	logrus.SetOutput(out)
	logrus.SetLevel(level)
}
