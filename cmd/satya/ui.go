package main

import "github.com/fatih/color"

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	mutedColor   = color.New(color.FgHiBlack)
	labelColor   = color.New(color.FgCyan, color.Bold)
)

func successMark() string { return successColor.Sprint("✓") }

func errorMark() string { return errorColor.Sprint("✗") }

func warnMark() string { return warnColor.Sprint("!") }

func muted(s string) string { return mutedColor.Sprint(s) }

func label(s string) string { return labelColor.Sprint(s) }

func verifiedMark(ok bool) string {
	if ok {
		return successColor.Sprint("verified")
	}
	return errorColor.Sprint("unverified")
}
