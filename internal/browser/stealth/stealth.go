package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed stealth.js
var initScript string

// Persona defines the browser characteristics to emulate. Empty fields leave the
// browser's own values untouched, which is what remote profiles rely on.
type Persona struct {
	UserAgent string
	Languages []string
	Timezone  string
	Locale    string
}

// LocalPersona is the fingerprint applied to locally launched browsers.
func LocalPersona(userAgent, locale, timezone string) Persona {
	return Persona{
		UserAgent: userAgent,
		Languages: []string{"en-US", "en"},
		Timezone:  timezone,
		Locale:    locale,
	}
}

// AcceptLanguage renders languages as an Accept-Language header value.
func AcceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply builds the CDP actions that register the init script and apply the persona overrides.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying stealth persona.",
		zap.String("user_agent", p.UserAgent),
		zap.String("timezone", p.Timezone),
		zap.String("locale", p.Locale),
	)

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(initScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to register stealth script: %w", err)
			}
			return nil
		}),
	}

	if p.UserAgent != "" {
		override := emulation.SetUserAgentOverride(p.UserAgent)
		if len(p.Languages) > 0 {
			override = override.WithAcceptLanguage(strings.Join(p.Languages, ","))
		}
		tasks = append(tasks, override)
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language":           AcceptLanguage(p.Languages),
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
		}))
	}
	return tasks
}
