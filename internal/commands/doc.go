// Package commands implements the chat commands of the bot: start, help,
// add, remove and list, plus the operator commands ping and status.
package commands
