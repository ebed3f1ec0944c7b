// Package broadcast runs the daily horoscope firing: it walks the roster and
// hands every member not yet served today to the delivery engine.
//
// A firing is sequential and stops at the first failed user unless the
// config asks for a worker pool or failure isolation. Members are marked as
// served once delivery returns without error, whether or not a message went
// out, so a second firing on the same day only retries failures and new
// members.
package broadcast
