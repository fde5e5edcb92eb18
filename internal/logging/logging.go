// Package logging configures the logrus logger shared by the server and the flag tool.
package logging

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	logrustash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/sirupsen/logrus"
)

// New returns a JSON logger writing to stdout.
func New(debug bool) *logrus.Logger {
	return NewWithOutput(os.Stdout, debug)
}

func NewWithOutput(out io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(out)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// AttachLogstash ships every entry to a logstash TCP input at addr.
// The returned closer releases the connection.
func AttachLogstash(logger *logrus.Logger, addr, app string) (io.Closer, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to dial logstash at %s: %w", addr, err)
	}
	hook := logrustash.New(conn, logrustash.DefaultFormatter(logrus.Fields{"type": app}))
	logger.Hooks.Add(hook)
	return conn, nil
}
