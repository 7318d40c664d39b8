package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// evasionScript patches the properties headless Chrome still leaks after
// go-rod/stealth has run.
const evasionScript = `
(function() {
    'use strict';

    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });

    Object.defineProperty(navigator, 'languages', {
        get: () => ['en-US', 'en'],
        configurable: true
    });

    if (!window.chrome) {
        window.chrome = {};
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = {};
    }

    const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
    if (originalQuery) {
        window.navigator.permissions.query = (parameters) => (
            parameters.name === 'notifications'
                ? Promise.resolve({ state: Notification.permission })
                : originalQuery(parameters)
        );
    }
})();
`

// CreatePage opens a blank page. Unless plain is set, the page is created
// through go-rod/stealth and the extra evasions are installed before any
// document loads.
func CreatePage(b *rod.Browser, plain bool) (*rod.Page, error) {
	if plain {
		return b.Page(proto.TargetCreateTarget{})
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}
	if _, err := page.EvalOnNewDocument(evasionScript); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}
