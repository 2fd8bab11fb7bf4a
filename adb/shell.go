package adb

import (
	"regexp"
	"strings"
)

// unsafeShellChars matches any character that forces an argument to be
// quoted before it is handed to the device shell.
var unsafeShellChars = regexp.MustCompile(`[^A-Za-z0-9_@%+=:,./-]`)

// escapeShellArg escapes embedded single quotes per POSIX single-quote
// rules.
func escapeShellArg(arg string) string {
	return strings.ReplaceAll(arg, "'", `'"'"'`)
}

// hasOuterQuotes reports whether cmd is already fully quoted with matching
// single or double outer quotes.
func hasOuterQuotes(cmd string) bool {
	return strings.HasPrefix(cmd, `"`) && strings.HasSuffix(cmd, `"`) ||
		strings.HasPrefix(cmd, `'`) && strings.HasSuffix(cmd, `'`)
}

// wrapRunAs rewrites cmd to execute under the package's UID. Already-quoted
// commands pass through untouched; commands with unsafe characters get
// their quotes escaped; plain commands are wrapped in double quotes.
func wrapRunAs(pkg, cmd string) string {
	if hasOuterQuotes(cmd) {
		return "run-as " + pkg + " " + cmd
	}
	if unsafeShellChars.MatchString(cmd) {
		return "run-as " + pkg + " " + escapeShellArg(cmd)
	}
	return "run-as " + pkg + ` "` + cmd + `"`
}
