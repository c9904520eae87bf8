package main

import "github.com/babaearn/Pnl-sharing-card-bot/internal/app"

func main() {
	app.Run()
}
