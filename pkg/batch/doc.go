// Package batch runs one mailing: it loads the sender credentials, reads the
// recipient table and renders, transmits and reports each recipient in table
// order. A recipient that fails never stops the ones after it.
package batch
