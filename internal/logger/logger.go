// Package logger writes leveled key/value lines and redacts credentials and
// personal data from the values unless running in development at DEBUG.
package logger

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a LOG_LEVEL value to a level. Unknown values mean INFO.
func ParseLevel(level string) LogLevel {
	for l, name := range levelNames {
		if strings.EqualFold(level, name) {
			return LogLevel(l)
		}
	}
	return INFO
}

type Logger struct {
	level  LogLevel
	redact bool
	out    *log.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a standalone logger writing to w.
func New(w io.Writer, level LogLevel, isDev bool) *Logger {
	return &Logger{
		level:  level,
		redact: !isDev || level > DEBUG,
		out:    log.New(w, "", log.LstdFlags),
	}
}

// Initialize sets up the process logger on stdout. Later calls are ignored.
func Initialize(level LogLevel, isDev bool) {
	once.Do(func() {
		defaultLogger = New(os.Stdout, level, isDev)
	})
}

func GetLogger() *Logger {
	Initialize(INFO, false)
	return defaultLogger
}

type redaction int

const (
	keep redaction = iota
	hide
	maskEmail
	hashID
	truncate
)

// Matched against the lowercased key, first hit wins.
var keyRules = []struct {
	fragments []string
	rule      redaction
}{
	{[]string{"password", "apikey", "api_key", "anon_key", "secret"}, hide},
	{[]string{"email"}, maskEmail},
	{[]string{"userid", "user_id"}, hashID},
	{[]string{"session", "token"}, truncate},
}

func ruleFor(key, value string) redaction {
	key = strings.ToLower(key)
	for _, r := range keyRules {
		for _, fragment := range r.fragments {
			if strings.Contains(key, fragment) {
				return r.rule
			}
		}
	}
	if strings.Contains(value, "@") {
		return maskEmail
	}
	return keep
}

func redactValue(key string, value interface{}) interface{} {
	s := fmt.Sprintf("%v", value)
	switch ruleFor(key, s) {
	case hide:
		return "[REDACTED]"
	case maskEmail:
		return maskAddress(s)
	case hashID:
		sum := sha256.Sum256([]byte(s))
		return fmt.Sprintf("user_%x", sum[:4])
	case truncate:
		if len(s) <= 8 {
			return s
		}
		return s[:4] + "****"
	}
	return value
}

func maskAddress(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "****"
	}
	if len(local) <= 2 {
		return "****@" + domain
	}
	return local[:1] + "****" + local[len(local)-1:] + "@" + domain
}

func (l *Logger) emit(level LogLevel, msg string, keysAndValues []interface{}) {
	if level < l.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if len(keysAndValues) > 0 {
		b.WriteString(" {")
		for i := 0; i < len(keysAndValues); i += 2 {
			if i > 0 {
				b.WriteString(",")
			}
			key := fmt.Sprintf("%v", keysAndValues[i])
			var value interface{} = ""
			if i+1 < len(keysAndValues) {
				value = keysAndValues[i+1]
			}
			if l.redact {
				value = redactValue(key, value)
			}
			fmt.Fprintf(&b, " %s=%v", key, value)
		}
		b.WriteString(" }")
	}
	l.out.Println(b.String())
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) { l.emit(DEBUG, msg, keysAndValues) }
func (l *Logger) Info(msg string, keysAndValues ...interface{})  { l.emit(INFO, msg, keysAndValues) }
func (l *Logger) Warn(msg string, keysAndValues ...interface{})  { l.emit(WARN, msg, keysAndValues) }
func (l *Logger) Error(msg string, keysAndValues ...interface{}) { l.emit(ERROR, msg, keysAndValues) }

func Debug(msg string, keysAndValues ...interface{}) { GetLogger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...interface{})  { GetLogger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...interface{})  { GetLogger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...interface{}) { GetLogger().Error(msg, keysAndValues...) }
