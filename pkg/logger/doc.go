// Package logger builds the structured slog logger shared by every component.
// Production output is JSON; other environments get the text handler.
package logger
