package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"secret",
}

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	phonePattern  = regexp.MustCompile(`\+?\d{8,15}`)
)

// IsSensitiveKey reports whether values logged under key must be hidden.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactString masks bearer tokens and keeps only the last four digits of
// anything that looks like a phone number.
func RedactString(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer "+redacted)
	locs := phonePattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if insideToken(s, start, end) {
			continue
		}
		digits := strings.TrimPrefix(s[start:end], "+")
		b.WriteString(s[last:start])
		b.WriteString(strings.Repeat("*", len(digits)-4))
		b.WriteString(digits[len(digits)-4:])
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// insideToken reports whether the digit run s[start:end] is part of a larger
// identifier such as a UUID segment, a hex id or a longer number.
func insideToken(s string, start, end int) bool {
	return (start > 0 && isTokenByte(s[start-1])) || (end < len(s) && isTokenByte(s[end]))
}

func isTokenByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	case b == '-', b == '_', b == '/':
		return true
	}
	return false
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so that fields and messages are scrubbed.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

// Check asks the wrapped core first so that its level and sampling
// decisions still apply; the write itself goes through the redactor.
func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(ent, nil) == nil {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = RedactString(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case IsSensitiveKey(f.Key):
			out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redacted}
		case f.Type == zapcore.StringType:
			f.String = RedactString(f.String)
			out[i] = f
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactString(err.Error())}
			} else {
				out[i] = f
			}
		default:
			out[i] = f
		}
	}
	return out
}
