package app

import (
	"log"
	"runtime/debug"

	tele "gopkg.in/telebot.v3"
)

// RecoverMiddleware keeps one failing update from taking the poller down.
func RecoverMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var chatID, senderID int64
					if c.Chat() != nil {
						chatID = c.Chat().ID
					}
					if c.Sender() != nil {
						senderID = c.Sender().ID
					}
					log.Printf("💥 PANIC [handler] chat=%d sender=%d: %v\n%s", chatID, senderID, r, string(debug.Stack()))
					err = nil
				}
			}()
			return next(c)
		}
	}
}
