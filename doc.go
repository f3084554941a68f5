// Package elementary runs declarative Model-Update-Command apps.
//
// The evaluator is in package 'core', the pattern matcher is in
// 'match', apps are loaded and stepped by 'app', and 'sio' runs them
// with effects from 'effects'.  The command-line tool is in
// `cmd/elementary`.
package elementary
