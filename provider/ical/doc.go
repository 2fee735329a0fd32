// Package ical provides a calendar provider for subscribed iCalendar (ICS)
// feeds. Every account is one feed, exposed as a flat calendar with the
// single folder core.BasicFolderID. Feeds are fetched on demand and kept
// until their refresh schedule (a cron expression) has a tick after the last
// fetch. The provider also answers free/busy queries for attendees that own
// a feed.
package ical
