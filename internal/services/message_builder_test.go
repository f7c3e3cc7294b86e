package services

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/require"

	"bulk-mailer/internal/models"
)

func writeAttachment(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.4 fake document")
	path := writeAttachment(t, "Jane_Doe.pdf", pdf)

	built, err := BuildMessage(&models.OutgoingMail{
		From:           "sender@example.com",
		To:             "jane@example.com",
		ToName:         "Jane Doe",
		Subject:        "Your Document - Jane Doe",
		Body:           "Dear Jane Doe,",
		AttachmentPath: path,
	})
	require.NoError(t, err)
	require.NotEmpty(t, built.MessageID)

	mr, err := mail.CreateReader(bytes.NewReader(built.Raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	require.Equal(t, "Your Document - Jane Doe", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	require.Equal(t, "jane@example.com", to[0].Address)

	var text string
	var filename string
	var attachment []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			text = string(b)
		case *mail.AttachmentHeader:
			filename, err = h.Filename()
			require.NoError(t, err)
			attachment, err = io.ReadAll(part.Body)
			require.NoError(t, err)
		}
	}

	require.Equal(t, "Dear Jane Doe,", strings.TrimSpace(text))
	require.Equal(t, "Jane_Doe.pdf", filename)
	require.Equal(t, pdf, attachment)
}

func TestBuildMessage_MissingAttachment(t *testing.T) {
	t.Parallel()

	_, err := BuildMessage(&models.OutgoingMail{
		From:           "sender@example.com",
		To:             "jane@example.com",
		Subject:        "x",
		AttachmentPath: filepath.Join(t.TempDir(), "nope.pdf"),
	})
	require.ErrorIs(t, err, ErrMissingAttachment)
}

func TestAttachmentContentType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/pdf", AttachmentContentType("a/b/doc.pdf"))
	require.Equal(t, "application/octet-stream", AttachmentContentType("noext"))
}
