// Package notifier delivers one rendered message to a list of recipients.
//
// Delivery is sequential and throttled by a token bucket. Each recipient is
// isolated: a failed send is logged and counted, then the next recipient is
// tried. There is no retry within a call and no dead-letter queue.
//
// Recipients reported unreachable by the transport (blocked bot, deleted
// chat) are logged at WARN with the chat id and kept subscribed.
package notifier
