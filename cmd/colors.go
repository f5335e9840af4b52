package cmd

import (
	"strings"

	"github.com/fatih/color"

	"github.com/khanhnv2901/safe-audit/internal/domain/check"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorMuted   = color.New(color.FgHiBlack).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return colorSuccess(status)
	case "warn", "warning":
		return colorWarn(status)
	case "error", "fail", "failed":
		return colorError(status)
	case "unknown":
		return colorMuted(status)
	default:
		return status
	}
}

func formatRatingWithColor(rating check.Rating, text string) string {
	switch rating {
	case check.RatingExcellent, check.RatingGood:
		return colorSuccess(text)
	case check.RatingFair:
		return colorWarn(text)
	default:
		return colorError(text)
	}
}
