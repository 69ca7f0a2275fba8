// Package cmd implements the cobra command tree for the resultmail CLI:
// sending a batch, previewing a template and printing the build version.
package cmd
