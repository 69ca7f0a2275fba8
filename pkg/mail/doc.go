// Package mail renders the acceptance and rejection result mails from
// embedded HTML templates and transmits them over an authenticated,
// STARTTLS-protected SMTP session, one session per message.
package mail
