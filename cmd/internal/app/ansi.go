package app

import (
	"log/slog"
	"regexp"
	"strconv"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func paint(code, s string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func stripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET", "HEAD":
		return paint(ansiGreen, m, color)
	case "POST", "PUT", "PATCH":
		return paint(ansiYellow, m, color)
	case "DELETE":
		return paint(ansiRed, m, color)
	default:
		return paint(ansiMagenta, m, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return paint(statusColor(code), strconv.Itoa(code), color)
}

func colorizeStatusClass(class string, color bool) string {
	switch class {
	case "2xx":
		return paint(ansiGreen, class, color)
	case "3xx":
		return paint(ansiCyan, class, color)
	case "4xx":
		return paint(ansiYellow, class, color)
	case "5xx":
		return paint(ansiRed, class, color)
	default:
		return class
	}
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(ansiRed, s, color)
	case ms >= 250:
		return paint(ansiYellow, s, color)
	default:
		return paint(ansiDim, s, color)
	}
}

// colorizeOutcome colours request results and moderation outcomes alike.
func colorizeOutcome(v string, color bool) string {
	switch v {
	case "success", "ok", "approved", "grant", "already_approved":
		return paint(ansiGreen, v, color)
	case "redirect", "pending", "challenge", "skipped", "noop":
		return paint(ansiCyan, v, color)
	case "client_error", "denied", "unregistered", "abandoned":
		return paint(ansiYellow, v, color)
	case "server_error", "error", "rejected", "timed_out", "deny":
		return paint(ansiRed, v, color)
	default:
		return quoteIfNeeded(v)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > 1<<63-1 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
