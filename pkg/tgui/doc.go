// Package tgui has small helpers for chat messages sent with ParseMode HTML.
package tgui
