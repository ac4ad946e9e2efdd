package humanoid

import (
	"fmt"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

var commonViewports = []schemas.Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
	{Width: 1600, Height: 900},
}

var userAgentTemplates = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36 Edg/%d.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
}

// RandomViewport picks one of the common desktop resolutions.
func (e *Engine) RandomViewport() schemas.Viewport {
	return commonViewports[e.intn(0, len(commonViewports)-1)]
}

// RandomUserAgent builds a desktop Chrome or Edge user agent for versions 120 to 123.
func (e *Engine) RandomUserAgent() string {
	version := e.intn(120, 123)
	switch idx := e.intn(0, len(userAgentTemplates)-1); idx {
	case 1:
		return fmt.Sprintf(userAgentTemplates[idx], version, version)
	default:
		return fmt.Sprintf(userAgentTemplates[idx], version)
	}
}
