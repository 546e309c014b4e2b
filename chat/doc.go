// Package chat is the Twitch chat front end of the trend service.
//
// Viewers link their Twitch account to an iRacing customer id with
// "!link <id>" and then ask for a chart with "!trend [range]", where range is
// one of 30d, 90d, 6m, 1y or all. The bot replies in thread with a short
// summary and a link to the rendered chart. "!unlink" removes the link.
//
// Bot.Handle holds all command logic and is independent of IRC; Bot.Run wires
// it to go-twitch-irc. The IRC client requires a bot username and an OAuth
// token with chat:read/chat:edit scopes.
package chat
