// Package commands routes chat messages of the form "/gen <sub> ..." to the
// generator dashboard service and replies in the same chat.
package commands
