// Package logger wraps zap behind a small facade: a global sugared
// logger with a console encoder, context helpers
// (ToContext/FromContext/WithName/WithKV/WithFields) and level
// parsing and configuration utilities.
//
// Every component takes a context and logs through it, so scoped
// names and fields follow the update pass from check to install.
package logger
