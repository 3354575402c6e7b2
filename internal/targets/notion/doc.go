// Package notion syncs notebook pages and todos to Notion.
//
// Every notebook is a page in the configured database, found by its UUID
// property and cached in the mapping store. Each notebook page becomes a
// toggle block on that page; todos become rows of a separate task database
// linking back to the toggle of the page they were written on.
//
// Requests are throttled to three per second, Notion's documented average.
package notion
