package adspower

import (
	"fmt"
	"strings"
)

// controlURLFields are the keys AdsPower has used for the browser's control URL,
// in order of preference.
var controlURLFields = []string{"ws", "ws_url", "webdriver_url", "wsUrl", "webdriverUrl", "ws_endpoint", "puppeteer"}

// nestedKeys are the objects searched after the top level and "ws".
var nestedKeys = []string{"data", "result", "browser"}

// FindControlURL searches an open-browser payload for a control URL. Fields are
// checked at the top level, then inside "ws", then inside "data", "result" and
// "browser". A value counts only if it is a ws, wss, http or https URL.
func FindControlURL(payload map[string]interface{}) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	if u, ok := searchFields(payload); ok {
		return u, true
	}
	if ws, ok := payload["ws"].(map[string]interface{}); ok {
		if u, ok := searchFields(ws); ok {
			return u, true
		}
	}
	for _, key := range nestedKeys {
		if nested, ok := payload[key].(map[string]interface{}); ok {
			if u, ok := searchFields(nested); ok {
				return u, true
			}
		}
	}
	return "", false
}

func searchFields(obj map[string]interface{}) (string, bool) {
	for _, field := range controlURLFields {
		if u, ok := asControlURL(obj[field]); ok {
			return u, true
		}
	}
	return "", false
}

func asControlURL(v interface{}) (string, bool) {
	switch v.(type) {
	case nil, map[string]interface{}, []interface{}:
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	for _, scheme := range []string{"ws://", "wss://", "http://", "https://"} {
		if strings.HasPrefix(s, scheme) {
			return s, true
		}
	}
	return "", false
}
