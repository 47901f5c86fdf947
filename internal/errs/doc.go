// Package errs defines the error taxonomy shared by every updater
// component: a single Error type carrying a Kind, an optional HTTP
// status and a wrapped cause.
//
// Components construct errors with New/Newf/Wrap and callers inspect
// them with KindOf/StatusOf or the standard errors.Is/As machinery.
package errs
