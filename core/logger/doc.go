// Package logger records structured shell events as newline delimited JSON
// and summarizes them into reports.
package logger
