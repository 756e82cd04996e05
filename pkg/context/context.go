package context

import (
	"cloud.google.com/go/logging"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context wraps a gin request context with a prefixed request logger.
type Context struct {
	*gin.Context

	logPrefix string
	entry     *logrus.Entry
}

func New(c *gin.Context) *Context {
	return &Context{
		Context: c,
		entry:   logrus.NewEntry(config.stdoutLogger),
	}
}

// WithLogPrefix tags every log line of this request with the handler name.
func (c *Context) WithLogPrefix(prefix string) *Context {
	c.logPrefix = prefix
	c.entry = config.stdoutLogger.WithField("prefix", prefix)
	return c
}

func (c *Context) Debugf(format string, args ...interface{}) {
	c.entry.Debugf(format, args...)
}

func (c *Context) Infof(format string, args ...interface{}) {
	c.entry.Infof(format, args...)
}

func (c *Context) Infoln(args ...interface{}) {
	c.entry.Infoln(args...)
}

func (c *Context) Warnf(format string, args ...interface{}) {
	c.entry.Warnf(format, args...)
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.entry.Errorf(format, args...)
	if config.sdLogger != nil {
		config.sdLogger.Log(logging.Entry{
			Severity: logging.Error,
			Payload:  map[string]interface{}{"prefix": c.logPrefix, "message": args},
		})
	}
}

// Event records a structured business event to the event log when one is
// configured, falling back to stdout.
func (c *Context) Event(name string, payload interface{}) {
	if config.sdEventLogger != nil {
		config.sdEventLogger.Log(logging.Entry{
			Payload: map[string]interface{}{"event": name, "payload": payload},
		})
		return
	}
	c.entry.WithField("event", name).Infof("%v", payload)
}
