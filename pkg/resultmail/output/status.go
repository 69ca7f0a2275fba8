package output

import (
	"fmt"
	"io"
	"path/filepath"
)

// WriteSent prints the per-recipient success line.
func WriteSent(w io.Writer, email, name string) {
	_, _ = fmt.Fprintf(w, "✓ Email sent successfully to %s (%s)\n", email, name)
}

// WriteFailed prints the per-recipient failure line.
func WriteFailed(w io.Writer, email, name string) {
	_, _ = fmt.Fprintf(w, "✗ Failed to send email to %s (%s)\n", email, name)
}

// WriteSendError prints the reason a recipient failed, ahead of its failure line.
func WriteSendError(w io.Writer, email string, err error) {
	_, _ = fmt.Fprintf(w, "Error sending email to %s: %v\n", email, err)
}

// WriteTableNotFound reports a missing recipient table by file name.
func WriteTableNotFound(w io.Writer, path string) {
	_, _ = fmt.Fprintf(w, "Error: %s not found!\n", filepath.Base(path))
}

// WritePreviewSaved confirms a preview file; label is "email" or
// "rejection email template".
func WritePreviewSaved(w io.Writer, label, path string) {
	_, _ = fmt.Fprintf(w, "Test %s saved to '%s'\n", label, path)
}
