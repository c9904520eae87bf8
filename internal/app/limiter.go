package app

// heavyLimiter caps concurrent CSV exports and chart renders.
var heavyLimiter = make(chan struct{}, 2)

func runHeavy(name string, fn func()) {
	safeGo(name, func() {
		heavyLimiter <- struct{}{}
		defer func() { <-heavyLimiter }()
		fn()
	})
}
