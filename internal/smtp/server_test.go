package smtp

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

const testMessage = "From: sender@example.com\r\n" +
	"To: Jane <jane@example.com>\r\n" +
	"Subject: Your Document - Jane\r\n" +
	"Message-Id: <abc@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Dear Jane,\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"../doc.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--BOUNDARY--\r\n"

func startTestServer(t *testing.T, users map[string]string) (*Server, string) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(Options{
		Dir:            t.TempDir(),
		MaxMessageSize: 1 << 20,
		Users:          users,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return srv, l.Addr().String()
}

func TestServer_ReceivesAndStoresMessage(t *testing.T) {
	t.Parallel()

	srv, addr := startTestServer(t, nil)

	auth := sasl.NewPlainClient("", "sender@example.com", "anything")
	err := gosmtp.SendMail(addr, auth, "sender@example.com", []string{"jane@example.com"}, strings.NewReader(testMessage))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(srv.Store().Received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := srv.Store().Received()[0]
	require.Equal(t, "sender@example.com", msg.Username)
	require.Equal(t, "sender@example.com", msg.From)
	require.Equal(t, []string{"jane@example.com"}, msg.To)
	require.Equal(t, "Your Document - Jane", msg.Subject)
	require.Equal(t, "abc@example.com", msg.MessageID)
	require.Contains(t, msg.Body, "Dear Jane,")
	require.Len(t, msg.Attachments, 1)

	att := msg.Attachments[0]
	require.Equal(t, "application/pdf", att.ContentType)
	require.Equal(t, filepath.Join(msg.Dir, "doc.pdf"), att.StoragePath)
	data, err := os.ReadFile(att.StoragePath)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
	require.FileExists(t, filepath.Join(msg.Dir, "message.eml"))
}

func TestServer_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv, addr := startTestServer(t, map[string]string{"alice@example.com": "secret"})

	auth := sasl.NewPlainClient("", "alice@example.com", "wrong")
	err := gosmtp.SendMail(addr, auth, "alice@example.com", []string{"jane@example.com"}, strings.NewReader(testMessage))
	require.Error(t, err)
	require.Empty(t, srv.Store().Received())

	auth = sasl.NewPlainClient("", "alice@example.com", "secret")
	err = gosmtp.SendMail(addr, auth, "alice@example.com", []string{"jane@example.com"}, strings.NewReader(testMessage))
	require.NoError(t, err)
}

func TestStore_UnparsableMessageKeepsRaw(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	store.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	msg, err := store.Save(Envelope{From: "a@x.com", To: []string{"b@x.com"}}, []byte("not a mime message"))
	require.NoError(t, err)
	require.Contains(t, msg.Dir, filepath.Join("2026", "03", "01"))
	require.FileExists(t, filepath.Join(msg.Dir, "message.eml"))
}
