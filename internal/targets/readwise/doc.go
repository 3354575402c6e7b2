// Package readwise syncs pages, highlights and todos to Readwise as
// highlights.
//
// Each notebook maps to a Readwise book titled after the notebook; its page
// text and PDF highlights become highlights located by page number. Todos
// from every notebook are collected in a single "reMarkable Tasks" book.
// Requests are throttled to 240 per minute.
package readwise
