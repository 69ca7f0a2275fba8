// Package recipients reads the recipient table: a header-first delimited
// file where every row becomes one Recipient keyed by column name.
package recipients
