package scraper

// X.com DOM hooks
// These are isolated here because X changes their DOM frequently
// Update these when reply recovery breaks

const (
	// Every post in a rendered thread carries a <time> inside the link to
	// its own status page.
	TimestampTag = "time"
	LinkTag      = "a"
)

// expandRepliesJS clicks the first "show more replies" style control, if
// any, and reports whether one was found.
const expandRepliesJS = `
	(function() {
		const patterns = [/show( more)? replies/i, /show additional replies/i, /show probable spam/i];
		const candidates = document.querySelectorAll('[role="button"], button, span');
		for (const el of candidates) {
			const text = (el.textContent || '').trim();
			if (text.length === 0 || text.length > 60) continue;
			if (patterns.some(p => p.test(text))) {
				const target = el.closest('[role="button"], button') || el;
				target.click();
				return true;
			}
		}
		return false;
	})()
`

// documentMarkupJS returns the rendered document for scanning on the Go side.
const documentMarkupJS = `document.documentElement.outerHTML`
