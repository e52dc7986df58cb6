package humanize

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// Framework wait bounds.
const (
	frameworkCeiling    = 2 * time.Second
	frameworkSettle     = 500 * time.Millisecond
	frameworkPollEvery  = 100 * time.Millisecond
	fontsReadyCeiling   = 8 * time.Second
	perImageCeiling     = 6 * time.Second
	stylesheetsCeilingS = 12 * time.Second
)

// detectFrameworkJS reports which SPA framework, if any, has mounted.
// jQuery is only reported once its ready flag fires.
const detectFrameworkJS = `() => {
	try {
		if (window.jQuery && window.jQuery.isReady) { return 'jquery'; }
		if (document.querySelector('[data-reactroot], [data-reactid]') ||
			(window.__REACT_DEVTOOLS_GLOBAL_HOOK__ && window.__REACT_DEVTOOLS_GLOBAL_HOOK__.renderers &&
				window.__REACT_DEVTOOLS_GLOBAL_HOOK__.renderers.size > 0)) { return 'react'; }
		const root = document.querySelector('#root, #app, #__next');
		if (root && root.childElementCount > 0 &&
			(root._reactRootContainer || Object.keys(root).some(k => k.startsWith('__reactContainer')))) { return 'react'; }
		if (window.Vue || document.querySelector('[data-v-app]') ||
			(root && root.__vue_app__)) { return 'vue'; }
		if (window.ng || window.getAllAngularRootElements ||
			document.querySelector('[ng-version], [ng-app]')) { return 'angular'; }
	} catch (e) {}
	return '';
}`

// WaitForFrameworks resolves when jQuery reports ready, or a React, Vue or
// Angular root appears and a settle interval elapses, or the overall
// ceiling is reached. Best-effort: errors are logged, never returned.
func WaitForFrameworks(ctx context.Context, page *rod.Page) {
	p := page.Context(ctx)
	deadline := time.Now().Add(frameworkCeiling)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		res, err := p.Eval(detectFrameworkJS)
		if err != nil {
			log.Debug().Err(err).Msg("Framework detection failed")
			return
		}

		switch fw := res.Value.Str(); fw {
		case "jquery":
			// Ready flag already fired; nothing to settle.
			return
		case "react", "vue", "angular":
			log.Debug().Str("framework", fw).Msg("Framework root detected, settling")
			SleepWithContext(ctx, frameworkSettle)
			return
		}

		if !SleepWithContext(ctx, frameworkPollEvery) {
			return
		}
	}
}

// assetWaitJS resolves once stylesheets are readable (a cross-origin
// access error counts as loaded), document fonts are ready, and every
// image is complete or has fired load/error. Each concern is individually
// bounded so one stuck asset cannot pin the promise.
const assetWaitJS = `(fontsMs, imageMs) => new Promise((resolve) => {
	const tasks = [];

	try {
		for (const sheet of Array.from(document.styleSheets)) {
			tasks.push(new Promise((done) => {
				try {
					void sheet.cssRules;
					done();
				} catch (e) {
					// Cross-origin sheets hide their rules but are loaded.
					done();
				}
			}));
		}
	} catch (e) {}

	try {
		if (document.fonts && document.fonts.ready) {
			tasks.push(Promise.race([
				document.fonts.ready,
				new Promise((done) => setTimeout(done, fontsMs))
			]));
		}
	} catch (e) {}

	try {
		for (const img of Array.from(document.images)) {
			if (img.complete) { continue; }
			tasks.push(new Promise((done) => {
				const timer = setTimeout(done, imageMs);
				const finish = () => { clearTimeout(timer); done(); };
				img.addEventListener('load', finish, { once: true });
				img.addEventListener('error', finish, { once: true });
			}));
		}
	} catch (e) {}

	Promise.all(tasks).then(() => resolve(true), () => resolve(true));
})`

// WaitForStylesheetsAndImages blocks until the page's stylesheets, fonts
// and images settle, within per-asset and overall ceilings. Best-effort.
func WaitForStylesheetsAndImages(ctx context.Context, page *rod.Page) {
	waitCtx, cancel := context.WithTimeout(ctx, stylesheetsCeilingS)
	defer cancel()

	p := page.Context(waitCtx)
	_, err := p.Evaluate(rod.Eval(assetWaitJS,
		fontsReadyCeiling.Milliseconds(),
		perImageCeiling.Milliseconds(),
	).ByPromise())
	if err != nil {
		log.Debug().Err(err).Msg("Stylesheet/image wait did not settle cleanly")
	}
}
