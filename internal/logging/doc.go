// Package logging wraps Zap with the configuration surface the knowledge
// store needs: level parsing (including a trace level below debug), JSON or
// console encoding, constant fields, and an observer-backed test logger.
package logging
